// Package tgui provides small Telegram UI helpers:
//   - Inline and reply keyboard builders
//   - Flat callback data helpers (prefix + argument)
//   - A simple, safe message builder with sensible defaults
//
// Design goals:
//   - Ergonomic for handlers (one builder covers text + send options)
//   - Safe by default for Telegram ParseMode="HTML" (auto escaping)
package tgui
