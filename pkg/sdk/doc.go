// Package lingorelay provides a Go client for the lingorelay translation
// relay service. Gateway processes push message lifecycle events to the
// engine and manage its relay channel over HTTP:
//
//	client := lingorelay.New("http://localhost:8080",
//	    lingorelay.WithAPIKey("secret"),
//	)
//	res, _ := client.MessageCreated(ctx, lingorelay.MessageEvent{
//	    ID:        msg.ID,
//	    ChannelID: msg.ChannelID,
//	    Author:    lingorelay.Author{ID: "42", Name: "Alice"},
//	    Content:   "こんにちは",
//	})
//
// Errors map to sentinel values; use errors.Is to branch on them.
package lingorelay
