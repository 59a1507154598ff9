// Package suite holds the built-in verification steps for the travel planner.
package suite

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tabide/pagecheck/internal/types"
)

// DefaultBaseURL is where the planner dev server listens
const DefaultBaseURL = "http://localhost:3000"

// DefaultDestination is the travel-info page the built-in suite captures
const DefaultDestination = "Paris"

// LoadingTimeout bounds how long plan generation may take to show the loading view
const LoadingTimeout = 10 * time.Second

func heading(name string) *types.Query {
	return &types.Query{Role: "heading", Name: name}
}

func exactHeading(name string) *types.Query {
	return &types.Query{Role: "heading", Name: name, Exact: true}
}

func click(role, name string) types.Action {
	return types.Action{Kind: types.ActionClick, Target: types.Query{Role: role, Name: name}}
}

func clickExact(role, name string) types.Action {
	return types.Action{Kind: types.ActionClick, Target: types.Query{Role: role, Name: name, Exact: true}}
}

func next() types.Action {
	return clickExact("button", ButtonNext)
}

func shot(path string) *types.Screenshot {
	return &types.Screenshot{Path: path}
}

// Planner walks the trip request wizard from the landing page to the loading view
func Planner() []types.Step {
	return []types.Step{
		{
			Name:       "initial-choice",
			URL:        PathHome,
			Wait:       types.Wait{For: exactHeading(HeadingInitialChoice)},
			Screenshot: shot("step0_initial.png"),
		},
		{
			Name:       "region",
			Actions:    []types.Action{click("button", ButtonUndecided)},
			Wait:       types.Wait{For: exactHeading(HeadingRegion)},
			Screenshot: shot("step1_region.png"),
		},
		{
			Name:    "must-visit",
			Actions: []types.Action{click("button", ButtonDomestic), next()},
			Wait:    types.Wait{For: heading(HeadingMustVisit)},
		},
		{
			Name:    "companions",
			Actions: []types.Action{clickExact("button", ButtonNone), next()},
			Wait:    types.Wait{For: exactHeading(HeadingCompanions)},
		},
		{
			Name:    "themes",
			Actions: []types.Action{click("button", ButtonSolo), next()},
			Wait:    types.Wait{For: exactHeading(HeadingThemes)},
		},
		{
			Name:    "budget",
			Actions: []types.Action{click("button", ButtonRelax), next()},
			Wait:    types.Wait{For: exactHeading(HeadingBudget)},
		},
		{
			Name:    "dates",
			Actions: []types.Action{click("button", ButtonStandard), next()},
			Wait:    types.Wait{For: exactHeading(HeadingDates)},
		},
		{
			Name: "pace",
			Actions: []types.Action{
				{Kind: types.ActionCheck, Target: types.Query{Role: "checkbox", Name: CheckboxUnset}},
				{Kind: types.ActionCheck, Target: types.Query{Role: "checkbox", Name: CheckboxUnset, Nth: -1}},
				next(),
			},
			Wait: types.Wait{For: heading(HeadingPace)},
			Assertions: []types.Assertion{
				{Query: types.Query{Role: "button", Name: ButtonRelaxed}},
			},
		},
		{
			Name:    "free-text",
			Actions: []types.Action{click("button", ButtonRelaxed), next()},
			Wait:    types.Wait{For: exactHeading(HeadingFreeText)},
			Assertions: []types.Assertion{
				{Query: types.Query{Role: "button", Name: ButtonCreate}},
			},
		},
		{
			Name:    "loading-view",
			Actions: []types.Action{click("button", ButtonCreate)},
			Wait: types.Wait{
				For:     &types.Query{Text: TextLoading},
				Timeout: types.D(LoadingTimeout),
			},
			Screenshot: shot("loading_view.png"),
		},
	}
}

// TravelInfo captures one destination page per category filter. Every
// variant is navigated on its own and gets its own screenshot.
func TravelInfo(destination string, categories ...string) []types.Step {
	if len(categories) == 0 {
		categories = TravelInfoCategories
	}

	steps := make([]types.Step, 0, len(categories))
	for _, category := range categories {
		q := url.Values{}
		q.Set("categories", category)
		steps = append(steps, types.Step{
			Name: "travel-info-" + category,
			URL:  fmt.Sprintf("%s/%s?%s", PathTravelInfo, url.PathEscape(destination), q.Encode()),
			Wait: types.Wait{For: &types.Query{Text: TextTravelInfoFor}},
			Assertions: []types.Assertion{
				{Query: types.Query{Role: "heading", Name: destination}},
			},
			Screenshot: &types.Screenshot{
				Path:     fmt.Sprintf("travel_info_%s_%s.png", slug(destination), category),
				FullPage: true,
			},
		})
	}
	return steps
}

// Mobile captures the planner entry page and travel-info index on a
// phone-sized viewport
func Mobile() []types.Step {
	mobile := &types.Viewport{Width: 390, Height: 844, Scale: 3, Mobile: true}
	return []types.Step{
		{
			Name:       "home-mobile",
			URL:        PathHome,
			Viewport:   mobile,
			Wait:       types.Wait{For: exactHeading(HeadingInitialChoice)},
			Screenshot: &types.Screenshot{Path: "home_mobile.png", FullPage: true},
		},
		{
			Name:       "travel-info-mobile",
			URL:        PathTravelInfo,
			Viewport:   mobile,
			Wait:       types.Wait{For: exactHeading(HeadingTravelInfo)},
			Screenshot: &types.Screenshot{Path: "travel_info_mobile.png", FullPage: true},
		},
	}
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		default:
			fmt.Fprintf(&b, "%x", r)
		}
	}
	return b.String()
}
