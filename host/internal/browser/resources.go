package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// cdpTypeByName maps config names to CDP resource type strings.
var cdpTypeByName = map[string]string{
	"images":      "image",
	"fonts":       "font",
	"media":       "media",
	"stylesheets": "stylesheet",
}

// applyResourceBlocking sets up request interception to block the configured
// resource types. Blocking images and fonts speeds up test runs against
// heavy pages without changing DOM structure.
func applyResourceBlocking(page *rod.Page, types []string) error {
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		name := strings.ToLower(t)
		if cdp, ok := cdpTypeByName[name]; ok {
			blocked[cdp] = true
		} else {
			blocked[name] = true
		}
	}

	router := page.HijackRequests()

	router.MustAdd("*", func(ctx *rod.Hijack) {
		if blocked[strings.ToLower(string(ctx.Request.Type()))] {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	go router.Run()

	return nil
}
