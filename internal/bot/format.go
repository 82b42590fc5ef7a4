package bot

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"campusmart/internal/feed"
	"campusmart/internal/model"
)

const (
	statusActive = "active"
	statusPaused = "paused"

	maxDescription = 300
)

// PlainText strips markup from listing text and collapses whitespace.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// FormatNotification formats a new listing found by a watch.
func FormatNotification(watchName string, l model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", watchName)
	fmt.Fprintf(&b, "%s\n%s · %s · %s", l.Title, feed.FormatPrice(l.Price), l.Location, l.Category)
	if desc := PlainText(l.Description); desc != "" {
		b.WriteString("\n\n")
		b.WriteString(truncate(desc, maxDescription))
	}
	fmt.Fprintf(&b, "\n\n/view %s", l.ID)
	return b.String()
}

// FormatPage renders listings appended to the feed. first is the 1-based position of items[0].
func FormatPage(items []model.Listing, first int, filters model.Filters) string {
	var b strings.Builder
	if first == 1 {
		b.WriteString("Listings")
		if f := describeFilters(filters); f != "" {
			fmt.Fprintf(&b, " (%s)", f)
		}
		b.WriteString(":\n")
	}
	for i, l := range items {
		fmt.Fprintf(&b, "\n%d. %s\n   %s · %s", first+i, l.Title, feed.FormatPrice(l.Price), l.Location)
	}
	return b.String()
}

// FormatEmptyFeed is shown when a reset finds nothing.
func FormatEmptyFeed(filters model.Filters) string {
	if f := describeFilters(filters); f != "" {
		return fmt.Sprintf("No listings match %s. Try /clear.", f)
	}
	return "No listings yet. Be the first: /post"
}

func describeFilters(f model.Filters) string {
	var parts []string
	if f.Location != "" {
		parts = append(parts, "location: "+f.Location)
	}
	if f.Category != "" {
		parts = append(parts, "category: "+f.Category)
	}
	return strings.Join(parts, ", ")
}

// FormatPreview renders the detail overlay. baseURL prefixes the detail link when set.
func FormatPreview(p *feed.Preview, baseURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", p.Title, p.Price)
	fmt.Fprintf(&b, "Location: %s\nCategory: %s\n", p.Location, p.Category)
	if desc := PlainText(p.Description); desc != "" {
		fmt.Fprintf(&b, "\n%s\n", truncate(desc, 1000))
	}
	if p.Image != feed.PlaceholderImage {
		fmt.Fprintf(&b, "\nPhoto: %s\n", p.Image)
	}
	if baseURL != "" {
		fmt.Fprintf(&b, "\n%s%s", baseURL, p.DetailPath)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatCategories lists the category catalogue.
func FormatCategories(cats []model.Category) string {
	var b strings.Builder
	b.WriteString("Categories:\n")
	for _, c := range cats {
		fmt.Fprintf(&b, "\n%s (%s)\n   %s", c.Name, c.Slug, c.Description)
	}
	return b.String()
}

// FormatMyListings renders the dashboard of a signed-in user.
func FormatMyListings(user *model.User, listings []model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s's listings", user.Name)
	if user.WhatsApp != "" {
		fmt.Fprintf(&b, " (WhatsApp %s)", user.WhatsApp)
	}
	b.WriteString(":\n")
	if len(listings) == 0 {
		b.WriteString("\nNothing posted yet. Use /post to sell something.")
		return b.String()
	}
	for i, l := range listings {
		fmt.Fprintf(&b, "\n%d. %s, %s\n   /view %s", i+1, l.Title, feed.FormatPrice(l.Price), l.ID)
	}
	return b.String()
}

// FormatWatchList formats the saved searches of a chat.
func FormatWatchList(watches []model.Watch, ruleCounts map[int64][2]int) string {
	if len(watches) == 0 {
		return "You have no saved searches yet. Use /watch <name> | [location] | [category] to add one."
	}
	var b strings.Builder
	b.WriteString("Your saved searches:\n")
	for _, w := range watches {
		status := statusActive
		if !w.IsActive {
			status = statusPaused
		}
		fmt.Fprintf(&b, "\n#%d %s  (every %d min) [%s]\n", w.ID, w.Name, w.IntervalMinutes, status)
		if f := describeFilters(w.Filters); f != "" {
			fmt.Fprintf(&b, "   %s\n", f)
		}
		inc, exc := ruleCounts[w.ID][0], ruleCounts[w.ID][1]
		if inc == 0 && exc == 0 {
			b.WriteString("   no keyword rules\n")
		} else {
			fmt.Fprintf(&b, "   %d include, %d exclude rules\n", inc, exc)
		}
	}
	return b.String()
}

// FormatRuleList formats the keyword rules of a watch grouped by kind.
func FormatRuleList(w *model.Watch, rules []model.Rule) string {
	if len(rules) == 0 {
		return fmt.Sprintf("No rules for #%d \"%s\".\nUse /include, /exclude, /include_re, /exclude_re to add rules.", w.ID, w.Name)
	}

	order := []struct {
		kind  model.RuleKind
		label string
	}{
		{model.RuleInclude, "Include (word)"},
		{model.RuleIncludeRe, "Include (regex)"},
		{model.RuleExclude, "Exclude (word)"},
		{model.RuleExcludeRe, "Exclude (regex)"},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rules for #%d \"%s\":\n", w.ID, w.Name)
	for _, group := range order {
		header := false
		for _, r := range rules {
			if r.Kind != group.kind {
				continue
			}
			if !header {
				fmt.Fprintf(&b, "\n%s:\n", group.label)
				header = true
			}
			fmt.Fprintf(&b, "  R%d: %s (%s)\n", r.ID, r.Value, scopeLabel(r.Scope))
		}
	}
	return b.String()
}

func scopeLabel(s model.RuleScope) string {
	switch s {
	case model.ScopeTitle:
		return "title only"
	case model.ScopeDescription:
		return "description only"
	default:
		return "all fields"
	}
}
