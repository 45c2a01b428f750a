// internal/flow/options.go
package flow

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/regflow/internal/browser"
	"github.com/xkilldash9x/regflow/internal/config"
)

// Selectors locate every element the registration flow touches.
type Selectors struct {
	DismissNotice   browser.Locator
	OpenLogin       browser.Locator
	RegisterTab     browser.Locator
	Identity        browser.Locator
	SendCode        browser.Locator
	Password        browser.Locator
	ConfirmPassword browser.Locator
	Submit          browser.Locator
	Toast           browser.Locator
}

// Options is the parsed, ready-to-use form of config.FlowConfig.
type Options struct {
	TargetURL       string
	Selectors       Selectors
	StepTimeout     time.Duration
	SettlePeriod    time.Duration
	Code            CodeWait
	SuccessKeywords []string
	EvidenceDir     string
}

// OptionsFromConfig parses every locator string in cfg.
func OptionsFromConfig(cfg config.FlowConfig) (Options, error) {
	var firstErr error
	parse := func(key, raw string) browser.Locator {
		loc, err := browser.ParseLocator(raw)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flow.%s: %w", key, err)
		}
		return loc
	}

	s := cfg.Selectors
	opts := Options{
		TargetURL: cfg.TargetURL,
		Selectors: Selectors{
			DismissNotice:   parse("selectors.dismiss_notice", s.DismissNotice),
			OpenLogin:       parse("selectors.open_login", s.OpenLogin),
			RegisterTab:     parse("selectors.register_tab", s.RegisterTab),
			Identity:        parse("selectors.identity", s.Identity),
			SendCode:        parse("selectors.send_code", s.SendCode),
			Password:        parse("selectors.password", s.Password),
			ConfirmPassword: parse("selectors.confirm_password", s.ConfirmPassword),
			Submit:          parse("selectors.submit", s.Submit),
			Toast:           parse("selectors.toast", s.Toast),
		},
		StepTimeout:  cfg.StepTimeout(),
		SettlePeriod: cfg.SettlePeriod(),
		Code: CodeWait{
			Strategy: cfg.CodeStrategy,
			Field:    parse("code_field", cfg.CodeField),
			Inputs:   parse("selectors.code_inputs", s.CodeInputs),
			Length:   cfg.CodeLength,
			Interval: cfg.CodePollInterval(),
			Deadline: cfg.CodeWaitDeadline(),
		},
		SuccessKeywords: cfg.SuccessKeywords,
		EvidenceDir:     cfg.EvidenceDir,
	}
	opts.Code.Exclude = opts.Selectors.Identity

	if firstErr != nil {
		return Options{}, firstErr
	}
	// The visible-inputs scan tells the identity input apart by its id attribute.
	if opts.Code.Strategy == config.CodeStrategyVisibleInputs && opts.Code.Exclude.Kind != browser.KindID {
		return Options{}, fmt.Errorf("flow.selectors.identity: must be an id= locator when code_strategy is %q, got %q",
			config.CodeStrategyVisibleInputs, s.Identity)
	}
	if len(opts.SuccessKeywords) == 0 {
		opts.SuccessKeywords = DefaultSuccessKeywords
	}
	return opts, nil
}

// FormSteps is the fixed step list that takes the page from landing to a filled-in
// registration form with the code requested.
func (o Options) FormSteps(a Attempt) []Step {
	s := o.Selectors
	return []Step{
		{Name: "dismiss_notice", Locator: s.DismissNotice, Condition: browser.Clickable, Action: ActionClick, Optional: true},
		{Name: "open_login", Locator: s.OpenLogin, Condition: browser.Clickable, Action: ActionClick},
		{Name: "register_tab", Locator: s.RegisterTab, Condition: browser.Clickable, Action: ActionClick},
		{Name: "fill_identity", Locator: s.Identity, Condition: browser.Present, Action: ActionType, Text: a.Identity},
		{Name: "send_code", Locator: s.SendCode, Condition: browser.Clickable, Action: ActionClick},
		{Name: "fill_password", Locator: s.Password, Condition: browser.Present, Action: ActionType, Text: a.Password},
		{Name: "fill_confirm_password", Locator: s.ConfirmPassword, Condition: browser.Present, Action: ActionType, Text: a.Password},
	}
}

// SubmitStep clicks the register button once a code is in place.
func (o Options) SubmitStep() Step {
	return Step{Name: "submit", Locator: o.Selectors.Submit, Condition: browser.Clickable, Action: ActionClick}
}
