package cache

import "fmt"

// Key layout:
// - roomKey(docID):  online members of a document room
//   (ZSet<userId, expireAtUnix>, score = logical expiry)
// - namesKey(docID): userId -> username for that room (Hash)
// - cursorKey:       one caret position per (doc, user), JSON value
const (
	keyRoomFmt   = "presence:room:{docID:%s}"
	keyNamesFmt  = "presence:room:names:{docID:%s}"
	keyCursorFmt = "presence:cursor:%s:%d"
)

func roomKey(docID string) string  { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string { return fmt.Sprintf(keyNamesFmt, docID) }

func cursorKey(docID string, userID uint64) string {
	return fmt.Sprintf(keyCursorFmt, docID, userID)
}
