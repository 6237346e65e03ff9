// Package bot is the chat-host facing surface. It turns host events
// (questions, import commands, settings commands) into knowledge base
// operations and ready-to-send reply text or LLM prompts. It never calls
// an answering model itself.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jhh003/limbusguide/internal/config"
	"github.com/jhh003/limbusguide/internal/kb"
	"github.com/jhh003/limbusguide/internal/prompt"
	"github.com/jhh003/limbusguide/internal/retriever"
)

// Answer is everything the host needs to produce a reply to a question:
// the prompts for its LLM and the retrieval evidence behind them.
type Answer struct {
	Query        string
	Mode         prompt.Mode
	SystemPrompt string
	UserPrompt   string
	Results      []retriever.Result
	Degraded     bool
}

// Service wires the knowledge base and retriever for one chat host.
type Service struct {
	kb        *kb.Manager
	retriever *retriever.Retriever
	cfg       config.Retrieval
	logger    *slog.Logger

	// webUIInfo is appended to status replies when the admin API is up.
	webUIInfo string
}

// New builds the host service.
func New(manager *kb.Manager, r *retriever.Retriever, cfg config.Retrieval, webUIInfo string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		kb:        manager,
		retriever: r,
		cfg:       cfg,
		logger:    logger,
		webUIInfo: webUIInfo,
	}
}

// Ask retrieves evidence for a group member's question and builds the
// prompts the host should send to its LLM.
func (s *Service) Ask(ctx context.Context, groupID, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("bot: question is empty")
	}

	resp, err := s.retriever.Retrieve(ctx, groupID, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	chunks := make([]prompt.ContextChunk, 0, len(resp.Results))
	for _, res := range resp.Results {
		tags := make([]string, 0, len(res.Tags))
		for _, tag := range res.Tags {
			tags = append(tags, tag.String())
		}
		chunks = append(chunks, prompt.ContextChunk{
			ID:      res.ChunkID,
			Content: res.Text,
			Tags:    tags,
			Scope:   res.Scope,
		})
	}

	s.logger.Info("question answered",
		"group", groupID,
		"mode", resp.Mode,
		"results", len(resp.Results),
		"degraded", resp.Degraded,
	)
	return &Answer{
		Query:        query,
		Mode:         resp.Mode,
		SystemPrompt: prompt.SystemPrompt(resp.Mode),
		UserPrompt:   prompt.ContextPrompt(chunks, query),
		Results:      resp.Results,
		Degraded:     resp.Degraded,
	}, nil
}

// StartImport opens a group import session and returns the reply text.
func (s *Service) StartImport(ctx context.Context, groupID string) (string, error) {
	if _, err := s.kb.StartImport(ctx, groupID); err != nil {
		return "", err
	}
	return prompt.ImportStartText, nil
}

// AppendImportContent adds one message's text to the open session.
func (s *Service) AppendImportContent(ctx context.Context, groupID, text string) error {
	return s.kb.AppendImport(ctx, groupID, text)
}

// FinishImport closes the session, ingests its content, and returns the
// confirmation text.
func (s *Service) FinishImport(ctx context.Context, groupID, name string) (string, error) {
	doc, chunks, err := s.kb.FinishImport(ctx, groupID, name)
	if err != nil {
		return "", err
	}
	return prompt.ImportSuccessText(doc.Name, doc.Chars, len(chunks), tagSummary(chunks, 5)), nil
}

// CancelImport drops the open session; ok reports whether an active one
// existed.
func (s *Service) CancelImport(ctx context.Context, groupID string) bool {
	return s.kb.CancelImport(ctx, groupID)
}

// ClearGroup empties the group's override library and reports how many
// documents were removed.
func (s *Service) ClearGroup(ctx context.Context, groupID string) (int, error) {
	return s.kb.ClearScope(ctx, kb.GroupScope(groupID))
}

// SetMode sets the group's default answer mode.
func (s *Service) SetMode(ctx context.Context, groupID, mode string) error {
	return s.kb.SetDefaultMode(ctx, groupID, mode)
}

// Status renders the group's knowledge base status reply.
func (s *Service) Status(groupID string) string {
	stats := s.kb.Stats(groupID)
	settings := s.kb.GroupSettings(groupID)

	lastImport := ""
	if !settings.LastImportAt.IsZero() {
		lastImport = settings.LastImportAt.Local().Format(time.DateTime)
	}

	return prompt.StatusText(prompt.StatusInfo{
		GroupID:      groupID,
		DefaultMode:  s.kb.DefaultMode(groupID),
		LastImport:   lastImport,
		GlobalDocs:   stats.Global.Documents,
		GlobalChunks: stats.Global.Chunks,
		GroupDocs:    stats.Group.Documents,
		GroupChunks:  stats.Group.Chunks,
		TopK:         s.cfg.TopK,
		ChunkSize:    s.cfg.ChunkSize,
		Overlap:      s.cfg.Overlap,
		WebUIInfo:    s.webUIInfo,
	})
}

// Template returns the document authoring template text.
func (s *Service) Template(ctx context.Context) (string, error) {
	t, err := s.kb.Template(ctx, "document")
	if err != nil {
		return "", err
	}
	return t.Content, nil
}

// Help returns the help reply text.
func (s *Service) Help(ctx context.Context) string {
	if t, err := s.kb.Template(ctx, "help"); err == nil {
		return t.Content
	}
	return prompt.HelpText
}

// tagSummary renders the most frequent tags across chunks, at most n
// lines.
func tagSummary(chunks []kb.Chunk, n int) string {
	counts := make(map[string]int)
	for _, c := range chunks {
		for _, tag := range c.Tags {
			counts[tag.String()]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	type tagCount struct {
		tag   string
		count int
	}
	sorted := make([]tagCount, 0, len(counts))
	for tag, count := range counts {
		sorted = append(sorted, tagCount{tag, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].tag < sorted[j].tag
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	var b strings.Builder
	for i, tc := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s ×%d", tc.tag, tc.count)
	}
	return b.String()
}
