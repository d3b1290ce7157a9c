package biolink

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var ErrInvalidBlock = errors.New("invalid block")

func isBlockType(t string) bool {
	for _, bt := range BlockTypes {
		if bt == t {
			return true
		}
	}
	return false
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func str(cfg map[string]interface{}, key string) string {
	s, _ := cfg[key].(string)
	return strings.TrimSpace(s)
}

// ValidateBlockConfig checks cfg has the fields its block type needs.
func ValidateBlockConfig(blockType string, cfg map[string]interface{}) error {
	if !isBlockType(blockType) {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidBlock, blockType)
	}
	switch blockType {
	case BlockLink, BlockVideo:
		if !isHTTPURL(str(cfg, "url")) {
			return fmt.Errorf("%w: %s blocks need an http(s) url", ErrInvalidBlock, blockType)
		}
	case BlockSocial:
		links, ok := cfg["links"].([]interface{})
		if !ok || len(links) == 0 {
			return fmt.Errorf("%w: social blocks need at least one link", ErrInvalidBlock)
		}
		for _, l := range links {
			m, ok := l.(map[string]interface{})
			if !ok || str(m, "platform") == "" || !isHTTPURL(str(m, "url")) {
				return fmt.Errorf("%w: social links need a platform and an http(s) url", ErrInvalidBlock)
			}
		}
	case BlockAction:
		if str(cfg, "label") == "" {
			return fmt.Errorf("%w: action blocks need a label", ErrInvalidBlock)
		}
		if u := str(cfg, "url"); u != "" && !isHTTPURL(u) {
			return fmt.Errorf("%w: action url must be http(s)", ErrInvalidBlock)
		}
	case BlockText:
		if str(cfg, "text") == "" {
			return fmt.Errorf("%w: text blocks need text", ErrInvalidBlock)
		}
	case BlockContact:
		if raw, ok := cfg["fields"]; ok {
			fields, ok := raw.([]interface{})
			if !ok {
				return fmt.Errorf("%w: contact fields must be a list", ErrInvalidBlock)
			}
			for _, f := range fields {
				if s, ok := f.(string); !ok || strings.TrimSpace(s) == "" {
					return fmt.Errorf("%w: contact fields must be names", ErrInvalidBlock)
				}
			}
		}
	}
	return nil
}

func toJSON(v map[string]interface{}) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

func decode(raw datatypes.JSON) map[string]interface{} {
	out := map[string]interface{}{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out
}

// ChooseVariant deterministically assigns a visitor to A or B for a block.
// The same visitor always sees the same variant while the split is unchanged.
func ChooseVariant(visitorKey string, blockID uuid.UUID, splitPercent int) string {
	if splitPercent <= 0 {
		return VariantA
	}
	if splitPercent >= 100 {
		return VariantB
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(visitorKey))
	_, _ = h.Write(blockID[:])
	if int(h.Sum32()%100) < splitPercent {
		return VariantB
	}
	return VariantA
}

// Resolve returns the block config and variant name served to visitorKey.
func (b *Block) Resolve(visitorKey string) (datatypes.JSON, string) {
	if !b.HasVariant() {
		return b.Config, VariantA
	}
	if ChooseVariant(visitorKey, b.ID, b.SplitPercent) == VariantB {
		return b.VariantB, VariantB
	}
	return b.Config, VariantA
}

// Target returns the outbound url a click on this config leads to, if any.
func Target(cfg datatypes.JSON) string {
	return str(decode(cfg), "url")
}
