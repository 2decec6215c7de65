// CLAUDE:SUMMARY Cookie/storage state ops and environment emulation: viewport, user agent, dialog arming, file chooser queue.
package host

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/gaia/reason"
)

// stateParams drives browser_state: cookies plus local/session storage.
type stateParams struct {
	SessionID string `json:"session_id"`
	Op        string `json:"op"` // get | set | clear

	Cookies        []cookieSpec      `json:"cookies,omitempty"`
	LocalStorage   map[string]string `json:"local_storage,omitempty"`
	SessionStorage map[string]string `json:"session_storage,omitempty"`
}

type cookieSpec struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
}

// browserState executes one state op and returns the applied diff.
// Callers hold s.mu.
func (s *Session) browserState(ctx context.Context, p stateParams) (map[string]any, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}

	switch p.Op {
	case "get", "":
		cookies, err := page.Cookies(nil)
		if err != nil {
			return nil, fmt.Errorf("host: get cookies: %w", err)
		}
		out := make([]cookieSpec, 0, len(cookies))
		for _, c := range cookies {
			out = append(out, cookieSpec{
				Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
				Secure: c.Secure, HTTPOnly: c.HTTPOnly,
			})
		}
		local, _ := storageDump(ctx, page, "localStorage")
		session, _ := storageDump(ctx, page, "sessionStorage")
		return map[string]any{
			"cookies":         out,
			"local_storage":   local,
			"session_storage": session,
		}, nil

	case "set":
		applied := map[string]any{}
		if len(p.Cookies) > 0 {
			specs := make([]*proto.NetworkCookieParam, 0, len(p.Cookies))
			for _, c := range p.Cookies {
				specs = append(specs, &proto.NetworkCookieParam{
					Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
					Secure: c.Secure, HTTPOnly: c.HTTPOnly, URL: s.currentURL(),
				})
			}
			if err := page.SetCookies(specs); err != nil {
				return nil, fmt.Errorf("host: set cookies: %w", err)
			}
			applied["cookies"] = len(specs)
		}
		if len(p.LocalStorage) > 0 {
			if err := storageSet(ctx, page, "localStorage", p.LocalStorage); err != nil {
				return nil, err
			}
			applied["local_storage"] = len(p.LocalStorage)
		}
		if len(p.SessionStorage) > 0 {
			if err := storageSet(ctx, page, "sessionStorage", p.SessionStorage); err != nil {
				return nil, err
			}
			applied["session_storage"] = len(p.SessionStorage)
		}
		return applied, nil

	case "clear":
		if err := (proto.NetworkClearBrowserCookies{}).Call(page); err != nil {
			return nil, fmt.Errorf("host: clear cookies: %w", err)
		}
		_, err := page.Context(ctx).Eval(`() => { localStorage.clear(); sessionStorage.clear(); }`)
		if err != nil {
			return nil, fmt.Errorf("host: clear storage: %w", err)
		}
		return map[string]any{"cleared": true}, nil

	default:
		return nil, reason.Errorf(reason.InvalidInput, "unknown state op %q", p.Op)
	}
}

func storageDump(ctx context.Context, page *rod.Page, kind string) (map[string]string, error) {
	res, err := page.Context(ctx).Eval(fmt.Sprintf(`() => {
		const out = {};
		for (let i = 0; i < %s.length; i++) {
			const k = %s.key(i);
			out[k] = %s.getItem(k);
		}
		return out;
	}`, kind, kind, kind))
	if err != nil {
		return nil, fmt.Errorf("host: dump %s: %w", kind, err)
	}
	out := map[string]string{}
	for k, v := range res.Value.Map() {
		out[k] = v.Str()
	}
	return out, nil
}

func storageSet(ctx context.Context, page *rod.Page, kind string, kv map[string]string) error {
	for k, v := range kv {
		_, err := page.Context(ctx).Eval(
			fmt.Sprintf(`(k, v) => %s.setItem(k, v)`, kind), k, v)
		if err != nil {
			return fmt.Errorf("host: set %s %q: %w", kind, k, err)
		}
	}
	return nil
}

// envParams drives browser_env: emulation settings and interaction arming
// that survive across actions until changed.
type envParams struct {
	SessionID string `json:"session_id"`
	Op        string `json:"op"` // get | set | clear

	Viewport  *viewportSpec `json:"viewport,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	Locale    string        `json:"locale,omitempty"`

	// Dialog arming: the next JS dialog is auto-handled per these fields.
	DialogAccept *bool  `json:"dialog_accept,omitempty"`
	DialogText   string `json:"dialog_text,omitempty"`

	// ChooserFiles arms the next native file chooser.
	ChooserFiles []string `json:"chooser_files,omitempty"`
}

type viewportSpec struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale,omitempty"`
}

// browserEnv applies environment emulation. Callers hold s.mu.
func (s *Session) browserEnv(ctx context.Context, p envParams) (map[string]any, error) {
	switch p.Op {
	case "get", "":
		armed, accept, _ := s.armedDialog()
		return map[string]any{
			"dialog_armed":  armed,
			"dialog_accept": accept,
			"chooser_files": s.armedChooser(),
		}, nil

	case "set":
		page, err := s.currentPage()
		if err != nil {
			return nil, err
		}
		applied := map[string]any{}

		if p.Viewport != nil {
			scale := p.Viewport.Scale
			if scale <= 0 {
				scale = 1.0
			}
			err := proto.EmulationSetDeviceMetricsOverride{
				Width: p.Viewport.Width, Height: p.Viewport.Height,
				DeviceScaleFactor: scale,
			}.Call(page)
			if err != nil {
				return nil, fmt.Errorf("host: set viewport: %w", err)
			}
			applied["viewport"] = fmt.Sprintf("%dx%d", p.Viewport.Width, p.Viewport.Height)
		}
		if p.UserAgent != "" {
			err := proto.EmulationSetUserAgentOverride{UserAgent: p.UserAgent}.Call(page)
			if err != nil {
				return nil, fmt.Errorf("host: set user agent: %w", err)
			}
			applied["user_agent"] = p.UserAgent
		}
		if p.Locale != "" {
			err := proto.EmulationSetLocaleOverride{Locale: p.Locale}.Call(page)
			if err != nil {
				return nil, fmt.Errorf("host: set locale: %w", err)
			}
			applied["locale"] = p.Locale
		}
		if p.DialogAccept != nil {
			s.armDialog(*p.DialogAccept, p.DialogText)
			applied["dialog_armed"] = true
		}
		if len(p.ChooserFiles) > 0 {
			files := make([]string, 0, len(p.ChooserFiles))
			for _, f := range p.ChooserFiles {
				full, err := s.svc.resolveDataPath(f)
				if err != nil {
					return nil, reason.Errorf(reason.NotActionable, "chooser file: %v", err)
				}
				files = append(files, full)
			}
			s.armChooser(files)
			applied["chooser_files"] = len(files)
		}
		return applied, nil

	case "clear":
		s.disarm()
		return map[string]any{"cleared": true}, nil

	default:
		return nil, reason.Errorf(reason.InvalidInput, "unknown env op %q", p.Op)
	}
}
