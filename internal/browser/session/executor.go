package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/apierr"
	"github.com/watchloom/pagewatch/internal/schemas"
)

// ExecuteOptions configures one Plan replay.
type ExecuteOptions struct {
	// SkipCleanup leaves the tab open after the run, so InteractiveAgent can
	// retain it across steps; the agent owns teardown in that case.
	SkipCleanup       bool
	ScreenshotEnabled bool
}

// Execute replays every step of a Plan in order, honoring optional/mandatory
// semantics, retries, conditions, and post-run validation.
func (s *Session) Execute(ctx context.Context, plan schemas.Plan, opts ExecuteOptions) schemas.ExecutionResult {
	start := time.Now()
	result := schemas.ExecutionResult{
		PlanID:    plan.ID,
		Logs:      []string{},
		CreatedAt: start,
		Metrics:   schemas.ExecutionMetrics{StepsTotal: len(plan.Steps)},
	}
	if !opts.SkipCleanup {
		defer s.Stop()
	}

	var screenshots []string
	extracted := map[string]interface{}{}

	for _, step := range plan.Steps {
		if step.Type == schemas.StepNavigate && step.URL == "" {
			step.URL = plan.URL
		}

		skip, err := s.evaluateCondition(ctx, step.Condition)
		if err != nil {
			result.Logs = append(result.Logs, fmt.Sprintf("step %s: condition evaluation error, proceeding: %v", step.ID, err))
		}
		if skip {
			result.Logs = append(result.Logs, fmt.Sprintf("step %s: skipped (condition falsy)", step.ID))
			continue
		}

		retryLimit := step.Retries
		if retryLimit == 0 {
			retryLimit = plan.ErrorHandling.RetryCount
		}
		if retryLimit == 0 {
			retryLimit = 3
		}

		outcome := s.runWithRetries(ctx, step, retryLimit)
		result.Metrics.RetryCount += outcome.attempts - 1

		if outcome.err != nil {
			if step.Optional {
				s.logger.Warn("optional step failed after retries, continuing",
					zap.String("step_id", step.ID), zap.Error(outcome.err))
				result.Logs = append(result.Logs, fmt.Sprintf("step %s: optional failure ignored: %v", step.ID, outcome.err))
				continue
			}
			result.Status = classifyFailureStatus(outcome.err)
			result.Error = &schemas.ExecutionError{Message: outcome.err.Error(), Step: step.ID}
			result.Metrics.ExecutionTimeMs = int(time.Since(start).Milliseconds())
			result.Metrics.StepsCompleted = result.Metrics.StepsCompleted
			result.Screenshots = screenshots
			result.ExtractedData = extracted
			return result
		}

		result.Metrics.StepsCompleted++
		if outcome.extracted != nil {
			extracted[step.ID] = outcome.extracted
		}
		if opts.ScreenshotEnabled && step.Type == schemas.StepScreenshot {
			if state, err := s.CaptureState(ctx); err == nil && state.Screenshot != "" {
				screenshots = append(screenshots, state.Screenshot)
			}
		}
		if step.WaitAfterMs > 0 {
			select {
			case <-time.After(time.Duration(step.WaitAfterMs) * time.Millisecond):
			case <-ctx.Done():
			}
		}
	}

	if violation := s.firstValidationViolation(ctx, plan.Validation); violation != "" {
		result.Status = schemas.StatusFailed
		result.Error = &schemas.ExecutionError{Message: "validation failed: " + violation}
		result.Metrics.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		result.Screenshots = screenshots
		result.ExtractedData = extracted
		return result
	}

	result.Status = schemas.StatusSuccess
	result.ExtractedData = extracted
	result.Screenshots = screenshots
	result.Metrics.ExecutionTimeMs = int(time.Since(start).Milliseconds())
	return result
}

type stepOutcome struct {
	err       error
	extracted interface{}
	attempts  int
}

// runWithRetries invokes ExecuteStep, backing off 1000×attempt ms between
// tries, up to limit attempts.
func (s *Session) runWithRetries(ctx context.Context, step schemas.Step, limit int) stepOutcome {
	var last schemas.StepOutcome
	for attempt := 1; attempt <= limit; attempt++ {
		last = s.ExecuteStep(ctx, step)
		if last.Success {
			return stepOutcome{extracted: last.Extracted, attempts: attempt}
		}
		if attempt < limit {
			select {
			case <-time.After(time.Duration(1000*attempt) * time.Millisecond):
			case <-ctx.Done():
				return stepOutcome{err: ctx.Err(), attempts: attempt}
			}
		}
	}
	err := fmt.Errorf("step %s failed after %d attempts: %s", step.ID, limit, last.Error)
	return stepOutcome{err: err, attempts: limit}
}

func classifyFailureStatus(err error) schemas.ExecutionStatus {
	if err == context.DeadlineExceeded || isTransientNavigationError(err) {
		return schemas.StatusTimeout
	}
	return schemas.StatusFailed
}

// ExecuteStep runs a single Step and reports success/failure without
// retrying; retry policy is the caller's concern (Execute, or the
// interactive agent driving one step at a time).
func (s *Session) ExecuteStep(ctx context.Context, step schemas.Step) schemas.StepOutcome {
	var err error
	var extracted interface{}

	switch step.Type {
	case schemas.StepNavigate:
		err = chromedp.Run(ctx, chromedp.Navigate(step.URL))
	case schemas.StepClick:
		err = chromedp.Run(ctx, chromedp.Click(step.Selector, chromedp.NodeVisible))
	case schemas.StepInputType:
		err = chromedp.Run(ctx, chromedp.SendKeys(step.Selector, step.Value, chromedp.NodeVisible))
	case schemas.StepSelect:
		err = chromedp.Run(ctx, chromedp.SetValue(step.Selector, step.Value, chromedp.NodeVisible))
	case schemas.StepHover:
		err = s.executeHover(ctx, step.Selector)
	case schemas.StepKeyPress:
		err = chromedp.Run(ctx, chromedp.KeyEvent(step.Key))
	case schemas.StepScroll:
		err = s.executeScroll(ctx, step)
	case schemas.StepWait:
		wait := step.WaitTime
		if wait == 0 {
			wait = 1000
		}
		select {
		case <-time.After(time.Duration(wait) * time.Millisecond):
		case <-ctx.Done():
			err = ctx.Err()
		}
	case schemas.StepWaitForSelector:
		err = s.executeWaitForSelector(ctx, step)
	case schemas.StepExtract:
		extracted, err = s.executeExtract(ctx, step)
	case schemas.StepEvaluate:
		var raw interface{}
		err = chromedp.Run(ctx, chromedp.Evaluate(step.Script, &raw))
		extracted = raw
	case schemas.StepScreenshot:
		err = nil // screenshot capture itself is handled by Execute via CaptureState
	case schemas.StepReload:
		err = chromedp.Run(ctx, chromedp.Reload())
	case schemas.StepGoBack:
		err = chromedp.Run(ctx, chromedp.NavigateBack())
	case schemas.StepGoForward:
		err = chromedp.Run(ctx, chromedp.NavigateForward())
	default:
		err = fmt.Errorf("unknown step type %q", step.Type)
	}

	if err != nil {
		return schemas.StepOutcome{Success: false, Error: err.Error()}
	}
	return schemas.StepOutcome{Success: true, Extracted: extracted}
}

// executeHover moves the tab's mouse over the center of the matched
// element's bounding box, dispatched directly via the input domain so the
// page sees a real mouseover/mouseenter, not a click.
func (s *Session) executeHover(ctx context.Context, selector string) error {
	var center []float64
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return [r.left + r.width / 2, r.top + r.height / 2];
	})()`, jsStringLiteral(selector))

	if err := chromedp.Run(ctx,
		chromedp.ScrollIntoView(selector),
		chromedp.Evaluate(script, &center),
	); err != nil {
		return err
	}
	if len(center) < 2 {
		return fmt.Errorf("hover: could not resolve geometry for selector %q", selector)
	}
	x, y := center[0], center[1]
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

// jsStringLiteral renders a Go string as a double-quoted JS string literal,
// escaping characters that would otherwise break out of the expression.
func jsStringLiteral(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

func (s *Session) executeScroll(ctx context.Context, step schemas.Step) error {
	if step.Scroll == nil {
		return chromedp.Run(ctx, chromedp.KeyEvent(" "))
	}
	if step.Scroll.X != nil || step.Scroll.Y != nil {
		x, y := 0, 0
		if step.Scroll.X != nil {
			x = *step.Scroll.X
		}
		if step.Scroll.Y != nil {
			y = *step.Scroll.Y
		}
		script := fmt.Sprintf("window.scrollTo(%d, %d)", x, y)
		return chromedp.Run(ctx, chromedp.Evaluate(script, nil))
	}
	var dx, dy int
	switch step.Scroll.Direction {
	case schemas.ScrollDown:
		dy = 600
	case schemas.ScrollUp:
		dy = -600
	case schemas.ScrollRight:
		dx = 600
	case schemas.ScrollLeft:
		dx = -600
	}
	script := fmt.Sprintf("window.scrollBy(%d, %d)", dx, dy)
	return chromedp.Run(ctx, chromedp.Evaluate(script, nil))
}

// executeWaitForSelector special-cases title selectors: wait only for the
// node to be attached (not visible), since a <title> element is never
// "visible" in the viewport sense.
func (s *Session) executeWaitForSelector(ctx context.Context, step schemas.Step) error {
	timeoutMs := 10000
	state := schemas.WaitVisible
	if step.WaitForSelector != nil {
		if step.WaitForSelector.TimeoutMs > 0 {
			timeoutMs = step.WaitForSelector.TimeoutMs
		}
		if step.WaitForSelector.State != "" {
			state = step.WaitForSelector.State
		}
	}
	if isTitleSelector(step.Selector) {
		state = schemas.WaitAttached
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	var action chromedp.Action
	if state == schemas.WaitVisible {
		action = chromedp.WaitVisible(step.Selector)
	} else {
		action = chromedp.WaitReady(step.Selector)
	}
	if err := chromedp.Run(waitCtx, action); err != nil {
		if waitCtx.Err() == context.DeadlineExceeded {
			return apierr.NavigationTimeout{URL: step.Selector, TimeoutMs: timeoutMs}
		}
		return err
	}
	return nil
}

// executeExtract resolves a text/html/value/attribute read from one or many
// matched nodes, special-casing selectors that target the document title.
func (s *Session) executeExtract(ctx context.Context, step schemas.Step) (interface{}, error) {
	if isTitleSelector(step.Selector) {
		var title string
		if err := chromedp.Run(ctx, chromedp.Title(&title)); err != nil {
			return nil, err
		}
		return title, nil
	}

	kind := schemas.ExtractText
	multiple := false
	attribute := ""
	if step.Extract != nil {
		if step.Extract.Kind != "" {
			kind = step.Extract.Kind
		}
		multiple = step.Extract.Multiple
		attribute = step.Extract.Attribute
	}

	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(step.Selector, &nodes, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("selector %q matched no elements", step.Selector)
	}

	extractOne := func(idx int) (string, error) {
		var value string
		var err error
		node := []cdp.NodeID{nodes[idx].NodeID}
		switch kind {
		case schemas.ExtractHTML:
			err = chromedp.Run(ctx, chromedp.OuterHTML(node, &value, chromedp.ByNodeID))
		case schemas.ExtractValue:
			err = chromedp.Run(ctx, chromedp.Value(node, &value, chromedp.ByNodeID))
		case schemas.ExtractAttribute:
			var ok bool
			err = chromedp.Run(ctx, chromedp.AttributeValue(node, attribute, &value, &ok, chromedp.ByNodeID))
		default:
			err = chromedp.Run(ctx, chromedp.Text(node, &value, chromedp.ByNodeID))
		}
		return strings.TrimSpace(value), err
	}

	if !multiple {
		value, err := extractOne(0)
		if err != nil {
			return nil, err
		}
		return value, nil
	}

	results := make([]string, 0, len(nodes))
	for i := range nodes {
		value, err := extractOne(i)
		if err != nil {
			continue
		}
		results = append(results, value)
	}
	return results, nil
}

// evaluateCondition runs a boolean page-context expression; a blank
// condition is never skipped.
func (s *Session) evaluateCondition(ctx context.Context, condition string) (skip bool, err error) {
	if strings.TrimSpace(condition) == "" {
		return false, nil
	}
	var truthy bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf("!!(%s)", condition), &truthy)); err != nil {
		return false, err
	}
	return !truthy, nil
}

// firstValidationViolation reports the name of the first successCriteria
// entry that evaluates falsy, or the first failureCriteria entry that
// evaluates truthy. Failure-criterion evaluation errors are treated as
// falsy (i.e. not a violation).
func (s *Session) firstValidationViolation(ctx context.Context, v schemas.Validation) string {
	for _, criterion := range v.SuccessCriteria {
		var truthy bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf("!!(%s)", criterion), &truthy)); err != nil || !truthy {
			return criterion
		}
	}
	for _, criterion := range v.FailureCriteria {
		var truthy bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf("!!(%s)", criterion), &truthy)); err == nil && truthy {
			return criterion
		}
	}
	return ""
}
