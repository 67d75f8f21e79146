package commands

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"
)

// Builtins returns the commands every MioEngine instance serves.
func Builtins() []Command {
	return []Command{
		{Name: "ping", Help: "help.ping", Run: Ping},
		{Name: "info", Help: "help.info", Run: Info},
		{Name: "help", Help: "help.help", Run: Help},
	}
}

// Ping replies with the heartbeat latency of the invoking shard. Before
// the first latency sample it replies that the bot is still starting.
func Ping(ctx context.Context, req *Request) error {
	rec, ok := req.Snapshot.Latency[req.Message.ShardID]
	if !ok {
		req.Reply(ctx, req.T("ping.starting"))
		return Errorf(KindInvalidData, "no latency record for shard %d", req.Message.ShardID)
	}
	if rec.Ping == 0 {
		req.Reply(ctx, req.T("ping.starting"))
		return Errorf(KindTooEarly, "shard %d has no latency sample yet", req.Message.ShardID)
	}
	return req.Reply(ctx, req.T("ping.pong", rec.Ping.Milliseconds(), req.Message.ShardID))
}

// Info replies with the version, uptime, shard count, handler mode and
// memory usage of the process.
func Info(ctx context.Context, req *Request) error {
	uptime := strings.TrimSpace(humanize.RelTime(req.Snapshot.ProcessStart, time.Now(), "", ""))

	lines := []string{
		req.T("info.title", req.Version),
		req.T("info.uptime", uptime),
		req.T("info.shards", req.ShardCount()),
		req.T("info.mode", req.Snapshot.HandlerMode.String()),
	}
	if rss, err := req.MemoryUsage(ctx); err == nil {
		lines = append(lines, req.T("info.memory", humanize.Bytes(rss)))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

// Help lists the registered commands with their descriptions.
func Help(ctx context.Context, req *Request) error {
	var b strings.Builder
	b.WriteString(req.T("help.header"))
	for _, cmd := range req.Table().Commands() {
		b.WriteByte('\n')
		b.WriteString(req.T("help.entry", req.Snapshot.Prefix, cmd.Name, req.T(cmd.Help)))
	}
	return req.Reply(ctx, b.String())
}

func processRSS(ctx context.Context) (uint64, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return mem.RSS, nil
}
