package exec

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/burstbot/browser"
)

// spyInstallJS wraps fetch and XHR once and records trade requests
const spyInstallJS = `(function () {
  if (window.__bbSpy) return true;
  var spy = window.__bbSpy = {log: []};
  var keep = function (e) { if (spy.log.length < 50) spy.log.push(e); };
  var origFetch = window.fetch;
  window.fetch = function (input, init) {
    var url = typeof input === 'string' ? input : (input && input.url) || '';
    var p = origFetch.apply(this, arguments);
    if (url.indexOf('/trade') >= 0) {
      var e = {kind: 'fetch', url: url, method: (init && init.method) || 'GET', body: init && typeof init.body === 'string' ? init.body.slice(0, 500) : ''};
      p.then(function (r) { e.status = r.status; keep(e); }, function (err) { e.error = String(err); keep(e); });
    }
    return p;
  };
  var origOpen = XMLHttpRequest.prototype.open, origSend = XMLHttpRequest.prototype.send;
  XMLHttpRequest.prototype.open = function (method, url) { this.__bb = {kind: 'xhr', method: method, url: String(url)}; return origOpen.apply(this, arguments); };
  XMLHttpRequest.prototype.send = function (body) {
    var e = this.__bb;
    if (e && e.url.indexOf('/trade') >= 0) {
      e.body = typeof body === 'string' ? body.slice(0, 500) : '';
      this.addEventListener('loadend', function () { e.status = this.status; keep(e); });
    }
    return origSend.apply(this, arguments);
  };
  return true;
})()`

const spyDrainJS = `(function () {
  var spy = window.__bbSpy;
  if (!spy) return [];
  var out = spy.log;
  spy.log = [];
  return out;
})()`

// Captured is one recorded trade request
type Captured struct {
	Kind   string `json:"kind"`
	URL    string `json:"url"`
	Method string `json:"method"`
	Body   string `json:"body"`
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// NetworkSpy logs the page's own trade requests around a submission
type NetworkSpy struct {
	driver browser.Driver
	logger zerolog.Logger
}

// NewNetworkSpy creates a spy over d
func NewNetworkSpy(d browser.Driver) *NetworkSpy {
	return &NetworkSpy{driver: d, logger: log.With().Str("component", "netspy").Logger()}
}

// Arm installs the wrappers; repeated calls are no-ops in the page
func (s *NetworkSpy) Arm(ctx context.Context) error {
	return s.driver.Eval(ctx, spyInstallJS, nil)
}

// Drain returns and clears everything recorded so far
func (s *NetworkSpy) Drain(ctx context.Context) ([]Captured, error) {
	var out []Captured
	if err := s.driver.Eval(ctx, spyDrainJS, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dump drains and logs
func (s *NetworkSpy) Dump(ctx context.Context) {
	caps, err := s.Drain(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Network spy drain failed")
		return
	}
	if len(caps) == 0 {
		s.logger.Info().Msg("🕵️ No trade requests seen")
		return
	}
	for _, c := range caps {
		s.logger.Info().
			Str("kind", c.Kind).
			Str("method", c.Method).
			Str("url", c.URL).
			Int("status", c.Status).
			Str("body", c.Body).
			Str("error", c.Error).
			Msg("🕵️ Trade request")
	}
}
