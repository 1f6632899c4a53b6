package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CallbackReceiver hands back the query parameters Monzo appended to the
// redirect URI once the user approved (or denied) the client.
type CallbackReceiver interface {
	Receive(ctx context.Context) (url.Values, error)
}

// redirector is implemented by receivers that decide the redirect URI
// themselves, e.g. a local server bound to a random port.
type redirector interface {
	RedirectURL() string
}

// Prompter is the interactive console: it prints instructions and reads
// single lines of input.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter wraps in and out. Share one Prompter per input source so
// buffered input is not lost between questions.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Printf writes to the prompter's output.
func (p *Prompter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format, args...)
}

// Ask prints prompt and blocks until a line is read.
func (p *Prompter) Ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			return "", ErrNoInput
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// PasteReceiver asks the user to paste the URL the browser was redirected
// to. It works when nothing can listen on the redirect URI.
type PasteReceiver struct {
	prompter *Prompter
}

// NewPasteReceiver reads the redirected URL through prompter.
func NewPasteReceiver(prompter *Prompter) *PasteReceiver {
	return &PasteReceiver{prompter: prompter}
}

// Receive prompts once and parses the pasted URL or query string.
func (p *PasteReceiver) Receive(ctx context.Context) (url.Values, error) {
	line, err := p.prompter.Ask("Paste the full URL you were redirected to: ")
	if err != nil {
		return nil, err
	}
	return parseCallback(line)
}

// parseCallback accepts a full redirect URL or just its query string.
func parseCallback(raw string) (url.Values, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingCode
	}
	if u, err := url.Parse(raw); err == nil && u.RawQuery != "" {
		return u.Query(), nil
	}
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse callback %q: %w", raw, err)
	}
	return values, nil
}

// CallbackServer is a short-lived local HTTP server bound to the redirect
// URI. It accepts exactly one callback and shuts itself down in Receive.
type CallbackServer struct {
	server      *http.Server
	redirectURL string
	results     chan url.Values
	errs        chan error
}

// NewCallbackServer starts listening on the host and port of redirectURI.
// Port 0 binds a free port; RedirectURL then reports the real address.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("local callback needs an http redirect URI, got %q", redirectURI)
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for callback: %w", err)
	}
	if port == "0" {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	s := &CallbackServer{
		redirectURL: u.String(),
		results:     make(chan url.Values, 1),
		errs:        make(chan error, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handle)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errs <- err:
			default:
			}
		}
	}()
	return s, nil
}

// RedirectURL is the redirect URI the server actually answers on.
func (s *CallbackServer) RedirectURL() string { return s.redirectURL }

func (s *CallbackServer) handle(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	select {
	case s.results <- params:
	default:
		http.Error(w, "callback already received", http.StatusConflict)
		return
	}
	fmt.Fprintln(w, "Authorization received. You can close this window and return to your terminal.")
}

// Receive waits for the first callback, then stops the server.
func (s *CallbackServer) Receive(ctx context.Context) (url.Values, error) {
	defer s.Close()
	select {
	case params := <-s.results:
		return params, nil
	case err := <-s.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the server. It is safe to call more than once.
func (s *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
