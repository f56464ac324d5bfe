package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

type OnboardingCmd struct {
	Answers string `help:"JSON file with onboarding answers to submit" type:"existingfile"`
}

func (c *OnboardingCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.App(ctx)
	if err != nil {
		return err
	}

	if app.Controller.Token() == "" && !app.Controller.Hydrate() {
		return fmt.Errorf("not logged in")
	}

	if c.Answers == "" {
		if app.Controller.CheckOnboardingStatus(ctx) {
			globals.printf("Onboarding is complete.\n")
		} else {
			globals.printf("Onboarding is not complete.\n")
		}
		return nil
	}

	data, err := os.ReadFile(c.Answers)
	if err != nil {
		return fmt.Errorf("failed to read answers: %w", err)
	}
	var answers map[string]any
	if err := json.Unmarshal(data, &answers); err != nil {
		return fmt.Errorf("answers must be a JSON object: %w", err)
	}

	res := app.Controller.SubmitOnboarding(ctx, answers)
	if !res.Success {
		return fail("onboarding", res)
	}
	globals.printf("Onboarding submitted.\n")
	return nil
}
