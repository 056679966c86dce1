package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Listing defaults for the Airtable API.
const (
	DefaultTokenField = "offset"
	DefaultPageSize   = 100
	DefaultMaxPages   = 1000
)

// PageRequest describes one listing operation.
type PageRequest struct {
	// Factory builds the descriptor for every page. The paginator injects the
	// continuation token and page size into its query.
	Factory func() RequestDescriptor
	// ItemsField names the array holding the page's items, e.g. "records".
	ItemsField string
	// TokenField names both the response field and the query parameter that
	// carry the continuation token.
	TokenField string
	// PageSizeParam is omitted from the query when empty.
	PageSizeParam string
	PageSize      int
	// Cap limits the number of collected items. Zero means no cap.
	Cap int
	// StartToken resumes a listing from a token returned earlier.
	StartToken string
}

// pageState is owned by a single Collect call.
type pageState struct {
	token string
	items []json.RawMessage
	seen  map[string]struct{}
	pages int
}

// Paginator assembles paginated listings into one ordered sequence.
type Paginator struct {
	exec     Executor
	logger   zerolog.Logger
	maxPages int
}

// NewPaginator creates a paginator that sends every page through exec.
func NewPaginator(exec Executor, logger zerolog.Logger) *Paginator {
	return &Paginator{
		exec:     exec,
		logger:   logger.With().Str("component", "paginator").Logger(),
		maxPages: DefaultMaxPages,
	}
}

// WithMaxPages overrides the guard against listings that never terminate.
func (p *Paginator) WithMaxPages(n int) *Paginator {
	if n > 0 {
		p.maxPages = n
	}
	return p
}

// Collect follows continuation tokens until the last page, the cap, or a failure.
// A failure on any page discards everything collected so far.
func (p *Paginator) Collect(ctx context.Context, pr PageRequest) Result {
	if pr.TokenField == "" {
		pr.TokenField = DefaultTokenField
	}
	if pr.PageSize <= 0 {
		pr.PageSize = DefaultPageSize
	}

	st := &pageState{
		token: pr.StartToken,
		seen:  make(map[string]struct{}),
	}
	truncated := false

	for {
		if st.pages >= p.maxPages {
			return Failed(NewFailure(KindRemoteRejected,
				fmt.Sprintf("listing did not terminate after %d pages", p.maxPages), false))
		}
		st.pages++

		res := p.exec.Execute(ctx, p.pageDescriptor(pr, st))
		if !res.OK() {
			p.logger.Debug().
				Int("page", st.pages).
				Int("discarded_items", len(st.items)).
				Str("kind", string(res.Failure().Kind)).
				Msg("Listing aborted")
			return res
		}

		body := res.Payload()
		st.append(gjson.GetBytes(body, pr.ItemsField))
		next := gjson.GetBytes(body, pr.TokenField).String()

		if pr.Cap > 0 && len(st.items) >= pr.Cap {
			truncated = len(st.items) > pr.Cap || next != ""
			st.items = st.items[:pr.Cap]
			break
		}
		if next == "" {
			break
		}
		if next == st.token {
			return Failed(NewFailure(KindRemoteRejected, "listing returned the same continuation token twice", false))
		}
		st.token = next
	}

	p.logger.Debug().
		Int("pages", st.pages).
		Int("items", len(st.items)).
		Bool("truncated", truncated).
		Msg("Listing complete")

	payload, err := assemble(pr.ItemsField, st.items, truncated)
	if err != nil {
		return Failed(NewFailure(KindTransientFailure, fmt.Sprintf("assemble listing: %v", err), false))
	}
	return Success(payload)
}

// pageDescriptor injects the token and page size into a fresh descriptor.
func (p *Paginator) pageDescriptor(pr PageRequest, st *pageState) RequestDescriptor {
	d := pr.Factory()
	q := d.Query
	if pr.PageSizeParam != "" {
		size := pr.PageSize
		if pr.Cap > 0 {
			if remaining := pr.Cap - len(st.items); remaining < size {
				size = remaining
			}
		}
		q = q.With(pr.PageSizeParam, strconv.Itoa(size))
	}
	if st.token != "" {
		q = q.With(pr.TokenField, st.token)
	}
	return d.WithQuery(q)
}

// append adds the items of one page in order, skipping IDs seen on earlier pages.
func (st *pageState) append(arr gjson.Result) {
	arr.ForEach(func(_, item gjson.Result) bool {
		if id := item.Get("id").String(); id != "" {
			if _, dup := st.seen[id]; dup {
				return true
			}
			st.seen[id] = struct{}{}
		}
		st.items = append(st.items, json.RawMessage(item.Raw))
		return true
	})
}

func assemble(field string, items []json.RawMessage, truncated bool) ([]byte, error) {
	if items == nil {
		items = []json.RawMessage{}
	}
	arr, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	out, err := sjson.SetRawBytes([]byte(`{}`), field, arr)
	if err != nil {
		return nil, err
	}
	if truncated {
		out, err = sjson.SetBytes(out, "truncated", true)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
