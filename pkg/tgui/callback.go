package tgui

import "strings"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

// Data joins a callback prefix with its argument. Data that would exceed
// Telegram's limit is truncated at the limit; routing prefixes are short
// enough that only a hostile argument could hit this.
func Data(prefix, arg string) string {
	s := prefix + arg
	if len(s) > MaxCallbackDataLen {
		return s[:MaxCallbackDataLen]
	}
	return s
}

// Arg extracts the argument of callback data routed by prefix.
func Arg(data, prefix string) (string, bool) {
	return strings.CutPrefix(data, prefix)
}
