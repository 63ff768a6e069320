// internal/notion/types.go
package notion

import (
	"strings"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
)

// RichText is the part of a Notion rich-text item this service reads.
type RichText struct {
	PlainText string `json:"plain_text"`
}

func joinPlainText(items []RichText) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(item.PlainText)
	}
	return b.String()
}

type fileRef struct {
	URL string `json:"url"`
}

// Icon is a Notion page, database or block icon.
type Icon struct {
	Type     string   `json:"type"`
	Emoji    string   `json:"emoji,omitempty"`
	External *fileRef `json:"external,omitempty"`
	File     *fileRef `json:"file,omitempty"`
}

// ToDomain flattens the icon. A nil icon stays nil.
func (i *Icon) ToDomain() *domain.Icon {
	if i == nil || i.Type == "" {
		return nil
	}
	out := &domain.Icon{Type: i.Type, Emoji: i.Emoji}
	switch {
	case i.External != nil:
		out.URL = i.External.URL
	case i.File != nil:
		out.URL = i.File.URL
	}
	return out
}

type pageProperty struct {
	Type  string     `json:"type"`
	Title []RichText `json:"title"`
}

// Page is a Notion page object.
type Page struct {
	ID         string                  `json:"id"`
	URL        string                  `json:"url"`
	Icon       *Icon                   `json:"icon"`
	Properties map[string]pageProperty `json:"properties"`
}

// Title returns the page title: the "title" property, then "Name", then
// any title-typed property. Empty when the page has none.
func (p *Page) Title() string {
	for _, key := range []string{"title", "Name"} {
		if prop, ok := p.Properties[key]; ok && prop.Type == "title" {
			if text := joinPlainText(prop.Title); text != "" {
				return text
			}
		}
	}
	for _, prop := range p.Properties {
		if prop.Type == "title" {
			if text := joinPlainText(prop.Title); text != "" {
				return text
			}
		}
	}
	return ""
}

// Block is a Notion block with the fields the scanner needs.
type Block struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	HasChildren   bool   `json:"has_children"`
	ChildDatabase *struct {
		Title string `json:"title"`
	} `json:"child_database,omitempty"`
	SyncedBlock *struct {
		SyncedFrom *struct {
			BlockID string `json:"block_id"`
		} `json:"synced_from"`
	} `json:"synced_block,omitempty"`
	Icon *Icon `json:"icon,omitempty"`
}

// BlockList is one page of /blocks/{id}/children.
type BlockList struct {
	Results    []Block `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// Database is a Notion database object. Properties keep source order.
type Database struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	Title      []RichText     `json:"title"`
	Icon       *Icon          `json:"icon"`
	Properties core.RawSchema `json:"properties"`
}

// PlainTitle joins the database title segments.
func (d *Database) PlainTitle() string {
	return joinPlainText(d.Title)
}

// User is the bot user behind an integration token.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Bot  *struct {
		WorkspaceName string `json:"workspace_name"`
	} `json:"bot,omitempty"`
}

// WorkspaceName returns the bot's workspace, if the token is a bot token.
func (u *User) WorkspaceName() string {
	if u.Bot == nil {
		return ""
	}
	return u.Bot.WorkspaceName
}

// CreatedPage is the part of the page-create response returned to callers.
type CreatedPage struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
