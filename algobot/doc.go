// Package algobot implements a Discord bot that surfaces competitive
// programming problems (LeetCode, Codeforces, AtCoder) to guilds, either
// on a per-guild schedule or on demand.
//
// The core of the package is a problem-data synchronization layer: the
// LeetCode client fetches problem metadata, daily-challenge records and
// per-problem detail from several upstream APIs, merges partial records
// into one canonical row per problem, and caches everything in local
// storage with a freshness policy. A cron-backed scheduler drives the
// daily posts, with per-guild time, timezone and destination settings
// kept in the same database.
//
// Key components:
//
//   - AlgoBot: The main struct wiring configuration, storage, clients
//     and the scheduler together.
//   - LeetCode: Problem sync, merge/cache engine and daily-challenge
//     resolution for a single LeetCode domain (leetcode.com or
//     leetcode.cn).
//   - Scheduler: One recurring job per guild, rebuilt from persisted
//     settings on startup and on every settings change.
//   - LLM: OpenAI-backed problem translation and "inspiration" hints,
//     with cached results and duplicate-request suppression.
//   - CodeforcesClient / AtCoderClient: Secondary problem sources used
//     for random problem picks.
package algobot
