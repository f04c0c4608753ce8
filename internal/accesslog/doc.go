// Package accesslog stores the append-only history of door access
// attempts reported by the fleet. The devices decide whether a card
// opens a door; doorhub only records what they report, keeping the raw
// payload for auditing.
package accesslog
