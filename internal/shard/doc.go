// Package shard defines the gateway connection abstraction MioEngine runs on.
//
// A bot is split into N shards; each shard holds one gateway session and
// serves a subset of the guilds. Everything above this package talks to the
// Shard interface only:
//
//	Dispatcher ──Reply──────────────┐
//	LatencyMonitor ──SetOnlineStatus─┤──> Shard (Discord | shardtest.Fake)
//	StatusRotator ──SetActivity──────┘
//
// # Presence
//
// Presence has two independent parts. The online status ("online" or
// "dnd") belongs to the latency monitor; the activity line belongs to the
// status rotator. A shard remembers the last value of each and every
// gateway update carries both, so neither writer erases the other.
//
// # Discord
//
// Discord wraps a discordgo session configured for guild and direct
// messages with the message content intent. Latency is the last heartbeat
// round-trip; a heartbeat still waiting for its acknowledgement reads as 0.
package shard
