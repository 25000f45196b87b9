package commands

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/platform"
	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnknownCommand is returned for a prefixed name that is not registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingArgument is returned when a required argument is absent.
	ErrMissingArgument = errors.New("missing argument")
	// ErrInvalidTarget is returned when an argument is neither a member mention nor an id.
	ErrInvalidTarget = errors.New("invalid member mention")
	// ErrInvalidAmount is returned when a clear amount is not a number.
	ErrInvalidAmount = errors.New("invalid amount")
)

// mentionPattern matches <@id> and <@!id>.
var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

// nameFolder folds compatibility forms and case so "KICK" and "ｋｉｃｋ" name the same command.
var nameFolder = transform.Chain(norm.NFKC, cases.Fold()) //nolint:gochecknoglobals

// Invocation is a parsed prefix command.
type Invocation struct {
	Definition Definition
	// Prefix is the guild prefix the command was invoked with.
	Prefix string
	// Text is the raw text after the command name.
	Text string
	// Args are the whitespace separated arguments after the command name.
	Args []string
	// Rest is the raw text after the first argument, used for free-form reasons.
	Rest string

	MessageID snowflake.ID
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Author    platform.Member
}

// Arg returns the n-th argument or ErrMissingArgument.
func (i Invocation) Arg(n int) (string, error) {
	if n >= len(i.Args) {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, i.Usage())
	}

	return i.Args[n], nil
}

// Usage returns the command usage with the invocation prefix.
func (i Invocation) Usage() string {
	return i.Prefix + i.Definition.Usage
}

// Parser turns prefixed message content into invocations.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser backed by the registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse reads a command from msg when its content starts with prefix. It returns false when the
// message is not a command at all and ErrUnknownCommand when the name is not registered.
func (p *Parser) Parse(msg platform.InboundMessage, prefix string) (Invocation, bool, error) {
	if prefix == "" || !strings.HasPrefix(msg.Content, prefix) {
		return Invocation{}, false, nil
	}

	body := strings.TrimSpace(msg.Content[len(prefix):])
	if body == "" {
		return Invocation{}, false, nil
	}

	head := strings.Fields(body)[0]
	rest := strings.TrimSpace(body[len(head):])
	name := FoldName(head)

	def, ok := p.registry.Lookup(name)
	if !ok {
		return Invocation{}, true, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	// Args stays nil for a bare command
	var args []string

	var tail string
	if rest != "" {
		args = strings.Fields(rest)
		tail = strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
	}

	return Invocation{
		Definition: def,
		Prefix:     prefix,
		Text:       rest,
		Args:       args,
		Rest:       tail,
		MessageID:  msg.ID,
		GuildID:    msg.GuildID,
		ChannelID:  msg.ChannelID,
		Author:     msg.Author,
	}, true, nil
}

// FoldName normalizes a command name for lookup.
func FoldName(name string) string {
	folded, _, err := transform.String(nameFolder, name)
	if err != nil {
		return strings.ToLower(name)
	}

	return folded
}

// ParseTarget reads a member id from a mention or a raw id.
func ParseTarget(arg string) (snowflake.ID, error) {
	if m := mentionPattern.FindStringSubmatch(arg); m != nil {
		arg = m[1]
	}

	id, err := snowflake.Parse(arg)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, arg)
	}

	return id, nil
}

// ParseAmount reads a clear amount.
func ParseAmount(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, arg)
	}

	return n, nil
}
