package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

// ConsoleSelectors locate the hosting console form elements.
type ConsoleSelectors struct {
	Subdomain string
	Content   string
	Submit    string
	Result    string
}

// DefaultConsoleSelectors matches the hosting console upload form.
var DefaultConsoleSelectors = ConsoleSelectors{
	Subdomain: `input[name="subdomain"]`,
	Content:   `textarea[name="html"]`,
	Submit:    `button[type="submit"]`,
	Result:    `.deploy-result, .error-message`,
}

// ChromeBrowser starts a dedicated headless Chrome per session.
type ChromeBrowser struct {
	consoleURL string
	execPath   string
	headless   bool
	selectors  ConsoleSelectors
}

// NewChromeBrowser targets the console at consoleURL. An empty execPath lets
// chromedp locate Chrome.
func NewChromeBrowser(consoleURL, execPath string, headless bool) (*ChromeBrowser, error) {
	if strings.TrimSpace(consoleURL) == "" {
		return nil, fmt.Errorf("hosting console url required")
	}
	return &ChromeBrowser{
		consoleURL: consoleURL,
		execPath:   execPath,
		headless:   headless,
		selectors:  DefaultConsoleSelectors,
	}, nil
}

// Open launches a browser process bound to ctx.
func (b *ChromeBrowser) Open(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	// start the browser now so launch failures surface from Open
	if err := chromedp.Run(taskCtx); err != nil {
		cancelTask()
		cancelAlloc()
		return nil, err
	}
	return &chromeSession{
		ctx:         taskCtx,
		cancelTask:  cancelTask,
		cancelAlloc: cancelAlloc,
		consoleURL:  b.consoleURL,
		selectors:   b.selectors,
	}, nil
}

type chromeSession struct {
	ctx         context.Context
	cancelTask  context.CancelFunc
	cancelAlloc context.CancelFunc
	consoleURL  string
	selectors   ConsoleSelectors
}

func (s *chromeSession) Publish(ctx context.Context, subdomain, html string) (string, error) {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var outcome string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(s.consoleURL),
		chromedp.WaitVisible(s.selectors.Subdomain, chromedp.ByQuery),
		chromedp.SetValue(s.selectors.Subdomain, subdomain, chromedp.ByQuery),
		chromedp.SetValue(s.selectors.Content, html, chromedp.ByQuery),
		chromedp.Click(s.selectors.Submit, chromedp.ByQuery),
		chromedp.WaitVisible(s.selectors.Result, chromedp.ByQuery),
		chromedp.Text(s.selectors.Result, &outcome, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(outcome), nil
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelTask()
	s.cancelAlloc()
	return err
}
