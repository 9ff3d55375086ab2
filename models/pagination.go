package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

type PageInfo struct {
	StartCursor string `json:"startCursor"`
	EndCursor   string `json:"endCursor"`
	HasNextPage *bool  `json:"hasNextPage,omitempty"`
}

// EncodeCompositeCursor packs a sort value and a row id into an opaque
// cursor. The id breaks ties between rows sharing the same sort value.
func EncodeCompositeCursor(sortValue string, id int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s|%d", sortValue, id)))
}

// DecodeCompositeCursor is the inverse. A nil, empty, or garbled cursor
// decodes to the zero pair, which paginating queries treat as
// "from the top".
func DecodeCompositeCursor(cursor *string) (string, int) {
	if cursor == nil || *cursor == "" {
		return "", 0
	}
	raw, err := base64.StdEncoding.DecodeString(*cursor)
	if err != nil {
		return "", 0
	}
	sortValue, idPart, found := strings.Cut(string(raw), "|")
	if !found {
		return "", 0
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return "", 0
	}
	return sortValue, id
}
