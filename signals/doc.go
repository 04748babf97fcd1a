// Package signals defines the payloads served by the MiiCoin backend and the
// parse functions that turn response bodies into them.
//
// Routes and their payloads:
//
//   - GET /api/signals: [SignalList]
//   - GET /api/bot/status: [BotStatus]
//   - GET /auth/profile: [Profile] (inside {"status", "user"})
//
// Fields pass through as the backend sends them. Parse functions only reject
// bodies whose shape makes them unrenderable.
package signals
