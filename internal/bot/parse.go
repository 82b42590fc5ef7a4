package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"campusmart/internal/client"
	"campusmart/internal/model"
)

// RuleArgs holds the parsed arguments of a rule command.
type RuleArgs struct {
	WatchID int64
	Scope   model.RuleScope
	Value   string
}

// ParseRuleCommand parses arguments for /include, /exclude, etc.
// Format: <watch_id> [-s title|description|all] <value...>
func ParseRuleCommand(args string) (RuleArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return RuleArgs{}, errors.New("usage: <watch_id> [-s title|description|all] <value>")
	}

	watchID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RuleArgs{}, fmt.Errorf("invalid watch ID %q", parts[0])
	}

	scope := model.ScopeAll
	rest := parts[1:]

	if len(rest) >= 2 && rest[0] == "-s" {
		switch rest[1] {
		case "title":
			scope = model.ScopeTitle
		case "description":
			scope = model.ScopeDescription
		case "all":
			scope = model.ScopeAll
		default:
			return RuleArgs{}, fmt.Errorf("invalid scope %q, use: title, description, all", rest[1])
		}
		rest = rest[2:]
	}

	if len(rest) == 0 {
		return RuleArgs{}, errors.New("rule value is required")
	}

	return RuleArgs{
		WatchID: watchID,
		Scope:   scope,
		Value:   strings.Join(rest, " "),
	}, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, errors.New("ID is required")
	}
	s = strings.TrimLeft(strings.Fields(s)[0], "#RrWw")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", args)
	}
	return id, nil
}

// ParseIntervalArgs extracts a watch ID and interval in minutes.
func ParseIntervalArgs(args string) (int64, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, 0, errors.New("usage: /interval <id> <minutes>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid watch ID %q", parts[0])
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil || mins < 1 || mins > 1440 {
		return 0, 0, errors.New("interval must be between 1 and 1440 minutes")
	}
	return id, mins, nil
}

// splitPipe splits args on '|' and trims every field.
func splitPipe(args string) []string {
	fields := strings.Split(args, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// ParseBrowseArgs parses "[location] [| category]". Empty input means no filters.
func ParseBrowseArgs(args string) model.Filters {
	fields := splitPipe(args)
	f := model.Filters{Location: fields[0]}
	if len(fields) > 1 {
		f.Category = fields[1]
	}
	return f.Normalize()
}

// ParseWatchArgs parses "<name> | [location] | [category]".
func ParseWatchArgs(args string) (string, model.Filters, error) {
	fields := splitPipe(args)
	if fields[0] == "" || len(fields) > 3 {
		return "", model.Filters{}, errors.New("usage: /watch <name> | [location] | [category]")
	}
	var f model.Filters
	if len(fields) > 1 {
		f.Location = fields[1]
	}
	if len(fields) > 2 {
		f.Category = fields[2]
	}
	if f.Category != "" {
		cat, ok := model.LookupCategory(f.Category)
		if !ok {
			return "", model.Filters{}, fmt.Errorf("unknown category %q, see /categories", f.Category)
		}
		f.Category = cat.Slug
	}
	return fields[0], f.Normalize(), nil
}

// ParseSignupArgs parses "<name> | <email> | <password>".
func ParseSignupArgs(args string) (name, email, password string, err error) {
	fields := splitPipe(args)
	if len(fields) != 3 || fields[0] == "" || fields[1] == "" || fields[2] == "" {
		return "", "", "", errors.New("usage: /signup <name> | <email> | <password>")
	}
	return fields[0], fields[1], fields[2], nil
}

// ParseLoginArgs parses "<email> <password>".
func ParseLoginArgs(args string) (email, password string, err error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "", "", errors.New("usage: /login <email> <password>")
	}
	return parts[0], parts[1], nil
}

// ParsePostArgs parses "<title> | <price> | <location> | <category> | [description]".
func ParsePostArgs(args string) (client.NewListing, error) {
	const usage = "usage: /post <title> | <price> | <location> | <category> | [description]"
	fields := splitPipe(args)
	if len(fields) < 4 || len(fields) > 5 {
		return client.NewListing{}, errors.New(usage)
	}
	l := client.NewListing{Title: fields[0], Location: fields[2]}
	if l.Title == "" || l.Location == "" {
		return client.NewListing{}, errors.New(usage)
	}

	price, err := strconv.ParseFloat(strings.NewReplacer(",", "", "₦", "").Replace(fields[1]), 64)
	if err != nil || price < 0 {
		return client.NewListing{}, fmt.Errorf("invalid price %q", fields[1])
	}
	l.Price = price

	cat, ok := model.LookupCategory(fields[3])
	if !ok {
		return client.NewListing{}, fmt.Errorf("unknown category %q, see /categories", fields[3])
	}
	l.Category = cat.Slug

	if len(fields) == 5 {
		l.Description = fields[4]
	}
	return l, nil
}
