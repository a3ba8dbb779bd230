// Package selector resolves a discovery result to exactly one target,
// prompting the operator when more than one resource matches.
package selector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	apperrors "github.com/yairfalse/tagconnect/internal/errors"
	"github.com/yairfalse/tagconnect/pkg/resource"
)

// Prompt reads choices from an interactive reader and writes the menu to out.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// New creates a prompt. in should be the controlling terminal rather than
// stdin, so the prompt still works when stdin is redirected.
func New(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Choose returns the zero-based index of the chosen row. A single row is
// chosen without prompting. With several rows it re-prompts until it reads a
// number in [1, len(rows)]; there is no retry limit and no timeout.
func (p *Prompt) Choose(noun string, header []string, rows [][]string) (int, error) {
	switch len(rows) {
	case 0:
		return -1, fmt.Errorf("%s: %w", noun, apperrors.ErrNoResourcesFound)
	case 1:
		fmt.Fprintf(p.out, "Only one %s matches (%s), connecting automatically\n", noun, strings.Join(rows[0], " "))
		return 0, nil
	}

	fmt.Fprintf(p.out, "Found %d %ss:\n", len(rows), noun)
	if err := p.render(header, rows); err != nil {
		return -1, err
	}

	for {
		fmt.Fprintf(p.out, "Select %s [1-%d]: ", noun, len(rows))

		line, readErr := p.in.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return -1, fmt.Errorf("read selection: %w", readErr)
		}

		n, err := ParseChoice(line, len(rows))
		if err == nil {
			return n - 1, nil
		}
		if apperrors.IsTerminal(err) {
			return -1, err
		}
		if readErr != nil {
			fmt.Fprintln(p.out)
			return -1, apperrors.ErrInputClosed
		}

		fmt.Fprintf(p.out, "Invalid selection %q, enter a number between 1 and %d\n", strings.TrimSpace(line), len(rows))
	}
}

func (p *Prompt) render(header []string, rows [][]string) error {
	table := tablewriter.NewWriter(p.out)
	table.Options(
		tablewriter.WithHeader(header),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(header), tw.AlignLeft)),
	)

	for i, row := range rows {
		if err := table.Append(append([]string{strconv.Itoa(i + 1)}, row...)); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// ParseChoice validates a 1-based menu entry.
func ParseChoice(input string, count int) (int, error) {
	s := strings.TrimSpace(input)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > count || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("%q: %w", s, apperrors.ErrInvalidSelection)
	}
	return n, nil
}

// SelectRecord resolves records to one database endpoint.
func (p *Prompt) SelectRecord(records resource.Records) (resource.Record, error) {
	rows := make([][]string, len(records))
	for i, r := range records {
		endpoint := r.Endpoint
		if r.Role != resource.RoleNone {
			endpoint += " (" + r.Role.String() + ")"
		}
		rows[i] = []string{r.Tag(), r.Identifier, r.Engine, endpoint}
	}

	idx, err := p.Choose("database", []string{"#", "Type", "Identifier", "Engine", "Endpoint"}, rows)
	if err != nil {
		return resource.Record{}, err
	}
	return records[idx], nil
}

// SelectInstance resolves instances to one EC2 instance.
func (p *Prompt) SelectInstance(instances []resource.Instance) (resource.Instance, error) {
	rows := make([][]string, len(instances))
	for i, inst := range instances {
		rows[i] = []string{"[EC2]", inst.Name, inst.ID, inst.InstanceType, inst.PrivateIP}
	}

	idx, err := p.Choose("instance", []string{"#", "Type", "Name", "ID", "Instance Type", "Private IP"}, rows)
	if err != nil {
		return resource.Instance{}, err
	}
	return instances[idx], nil
}
