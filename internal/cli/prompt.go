package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	"github.com/gloodan17/Course-Enrollment-Database/internal/service"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

var (
	// ErrInputClosed is returned once the operator's input reaches EOF.
	ErrInputClosed = errors.New("input closed")
	// ErrCancelled is returned when the operator declines to retry a selection.
	ErrCancelled = errors.New("selection cancelled")
)

const dateLayout = "2006-01-02"

type entitySource interface {
	Entity(collection string) (service.Entity, error)
}

// Prompter reads typed answers from a line-oriented input, re-asking until each
// answer parses. Reference fields are answered by selecting the target document
// through one of its unique combinations.
type Prompter struct {
	in      *bufio.Reader
	out     io.Writer
	records entitySource
	now     func() time.Time
}

// NewPrompter constructs a prompter reading from in and echoing questions to out.
func NewPrompter(in io.Reader, out io.Writer, records entitySource) *Prompter {
	return &Prompter{
		in:      bufio.NewReader(in),
		out:     out,
		records: records,
		now:     time.Now,
	}
}

// Printf writes to the prompter's output.
func (p *Prompter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format, args...)
}

// Line asks label and returns the trimmed answer.
func (p *Prompter) Line(label string) (string, error) {
	p.Printf("%s --> ", label)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrInputClosed
		}
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Int asks until the answer is a whole number.
func (p *Prompter) Int(label string) (int, error) {
	for {
		raw, err := p.Line(label)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(raw)
		if err == nil {
			return n, nil
		}
		p.Printf("Invalid input. Enter a whole number.\n")
	}
}

// IntBetween asks until the answer is a whole number in [lo, hi].
func (p *Prompter) IntBetween(label string, lo, hi int) (int, error) {
	for {
		n, err := p.Int(strings.TrimSpace(fmt.Sprintf("%s [%d-%d]", label, lo, hi)))
		if err != nil {
			return 0, err
		}
		if n >= lo && n <= hi {
			return n, nil
		}
		p.Printf("Invalid input. Enter from %d to %d.\n", lo, hi)
	}
}

// Time asks for an hour and minutes and returns the HHMM form.
func (p *Prompter) Time(label string) (int, error) {
	hour, err := p.IntBetween(label+"'s hour", 0, 23)
	if err != nil {
		return 0, err
	}
	minutes, err := p.IntBetween(label+"'s minutes", 0, 59)
	if err != nil {
		return 0, err
	}
	return hour*100 + minutes, nil
}

// Choice lists options numbered from 1 and returns the chosen index.
func (p *Prompter) Choice(title string, options []string) (int, error) {
	p.Printf("%s\n", title)
	for i, o := range options {
		p.Printf("%d - %s\n", i+1, o)
	}
	n, err := p.IntBetween("", 1, len(options))
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}

// Confirm asks a y/n question until answered.
func (p *Prompter) Confirm(label string) (bool, error) {
	for {
		raw, err := p.Line(label + " [y/n]")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(raw) {
		case "y":
			return true, nil
		case "n":
			return false, nil
		}
		p.Printf("Invalid input. Enter 'y' for Yes or 'n' for No.\n")
	}
}

// Date asks for a YYYY-MM-DD date; an empty answer means today.
func (p *Prompter) Date(label string) (time.Time, error) {
	for {
		raw, err := p.Line(label + " (YYYY-MM-DD, empty for today)")
		if err != nil {
			return time.Time{}, err
		}
		if raw == "" {
			y, m, d := p.now().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
		t, err := time.Parse(dateLayout, raw)
		if err == nil {
			return t, nil
		}
		p.Printf("Invalid date. Use the format YYYY-MM-DD.\n")
	}
}

// Values asks for every creation-time field of sch in declaration order.
func (p *Prompter) Values(ctx context.Context, sch *schema.AttributeSchema) (repository.Values, error) {
	values := repository.Values{}
	for _, f := range sch.Prompted() {
		v, err := p.Field(ctx, f)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	return values, nil
}

// Field asks for one value in the shape the engine accepts for f.Kind.
func (p *Prompter) Field(ctx context.Context, f schema.Field) (interface{}, error) {
	label := f.Prompt
	if label == "" {
		label = f.Name
	}
	switch f.Kind {
	case schema.KindInteger:
		return p.Int(label)
	case schema.KindTime:
		return p.Time(label)
	case schema.KindEnum:
		i, err := p.Choice(label+":", f.Options)
		if err != nil {
			return nil, err
		}
		return f.Options[i], nil
	case schema.KindReference:
		p.Printf("Select %s\n", f.Target)
		_, ref, err := p.Select(ctx, f.Target)
		if err != nil {
			return nil, err
		}
		return ref, nil
	case schema.KindString:
		return p.Line(label)
	default:
		return nil, fmt.Errorf("field %s of kind %s cannot be prompted", f.Name, f.Kind)
	}
}

// Select picks one document of collection: the operator chooses a unique
// combination and answers its fields until a document matches. The returned
// document is denormalized; the Reference names it for Create.
func (p *Prompter) Select(ctx context.Context, collection string) (models.Document, repository.Reference, error) {
	entity, err := p.records.Entity(collection)
	if err != nil {
		return nil, repository.Reference{}, err
	}
	sch := entity.Schema()

	labels := make([]string, 0, len(sch.Unique))
	for i := range sch.Unique {
		labels = append(labels, "["+sch.CombinationLabel(i)+"]")
	}
	combination, err := p.Choice("Choose a way to select:", labels)
	if err != nil {
		return nil, repository.Reference{}, err
	}
	fields, err := sch.Combination(combination)
	if err != nil {
		return nil, repository.Reference{}, err
	}

	for {
		key := repository.Values{}
		for _, f := range fields {
			v, err := p.Field(ctx, f)
			if err != nil {
				return nil, repository.Reference{}, err
			}
			key[f.Name] = v
		}

		doc, err := entity.LookupByKey(ctx, combination, key)
		if err == nil {
			return doc, repository.Reference{Combination: combination, Key: key}, nil
		}
		if !appErrors.HasCode(err, appErrors.ErrNotFound.Code) && !appErrors.HasCode(err, appErrors.ErrValidation.Code) {
			return nil, repository.Reference{}, err
		}
		p.Printf("Couldn't find a %s with %s: %s\n", sch.Variant, labels[combination], appErrors.FromError(err).Message)
		again, err := p.Confirm("Try again?")
		if err != nil {
			return nil, repository.Reference{}, err
		}
		if !again {
			return nil, repository.Reference{}, ErrCancelled
		}
	}
}
