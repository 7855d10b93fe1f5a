package store

import "strings"

// messageTableName derives the per-conversation message table name from a
// conversation ID, per spec §4.5: every non-alphanumeric ASCII byte is
// replaced with '_', and the result is prefixed "msg_". This is the single
// place raw table names are assembled anywhere in the package — the Design
// Notes warn that any code exposing raw table names elsewhere must preserve
// this exact contract.
func messageTableName(conversationID string) string {
	var b strings.Builder
	b.WriteString("msg_")
	for i := 0; i < len(conversationID); i++ {
		c := conversationID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
