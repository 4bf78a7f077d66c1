package protocol

import (
	"fmt"
	"strings"
)

// Tone selects the conversation style.
type Tone int

const (
	ToneCreative Tone = iota
	ToneBalanced
	TonePrecise
)

// String returns the wire name of the tone.
func (t Tone) String() string {
	switch t {
	case ToneCreative:
		return "Creative"
	case ToneBalanced:
		return "Balanced"
	case TonePrecise:
		return "Precise"
	default:
		return "unknown"
	}
}

// ParseTone parses a tone name case-insensitively. An empty name is Balanced.
func ParseTone(name string) (Tone, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "creative":
		return ToneCreative, nil
	case "", "balanced":
		return ToneBalanced, nil
	case "precise":
		return TonePrecise, nil
	default:
		return ToneBalanced, fmt.Errorf("unknown tone %q", name)
	}
}

func (t Tone) optionsSets() []string {
	switch t {
	case TonePrecise:
		return []string{
			"nlu_direct_response_filter", "deepleo", "disable_emoji_spoken_text",
			"responsible_ai_policy_235", "enablemm", "dv3sugg", "autosave",
			"iyxapbing", "iycapbing", "h3precise", "sunoupsell", "techinstgnd",
			"vidtoppb", "flxvsearch", "noknowimg", "eredirecturl", "clgalileo",
			"gencontentv3", "enable_user_consent", "fluxmemcst",
		}
	case ToneBalanced:
		return []string{
			"nlu_direct_response_filter", "deepleo", "disable_emoji_spoken_text",
			"responsible_ai_policy_235", "enablemm", "dv3sugg", "autosave",
			"iyxapbing", "iycapbing", "galileo", "saharagenconv5", "techinstgnd",
			"eredirecturl", "enable_user_consent", "fluxmemcst",
		}
	default:
		return []string{
			"nlu_direct_response_filter", "deepleo", "disable_emoji_spoken_text",
			"responsible_ai_policy_235", "enablemm", "dv3sugg", "autosave",
			"iyxapbing", "iycapbing", "enable_user_consent", "fluxmemcst",
			"galileo", "saharagenconv5", "gldcl1p", "techinstgnd", "hourthrot",
			"elec2t", "elecgnd", "vidtoppb", "eredirecturl",
		}
	}
}

func (t Tone) sliceIDs() []string {
	if t == ToneCreative {
		return []string{
			"301hlink", "scmcbasecf", "cmcpupsalltf", "cdxsyddp2", "0301techgnd",
			"220dcl1s0", "0215wcrwip", "0312hrthrot", "0228elecgnd", "bingfccf",
			"0225unsticky1", "308videopb", "0228scss0", "defcontrol", "3022tpvs0",
		}
	}
	return []string{
		"301hlink", "nodesign", "stpstream", "stpsig", "scmcbase", "cmcpupsalltf",
		"sydtransctrl", "thdnsrchcf", "sunoupsell", "0301techgnd", "220dcl1s0",
		"0215wcrwippsr", "0312hrthrots0", "bingfc", "kcicddfix", "kcremovedot",
		"0225unsticky1", "308videopb", "3022tphpv",
	}
}

// allowedMessageTypes is the same for every tone.
var allowedMessageTypes = []string{
	"ActionRequest", "Chat", "ConfirmationCard", "Context", "InternalSearchQuery",
	"InternalSearchResult", "Disengaged", "InternalLoaderMessage", "Progress",
	"RenderCardRequest", "RenderContentRequest", "AdsQuery", "SemanticSerp",
	"GenerateContentQuery", "SearchQuery", "GeneratedCode", "InternalTasksMessage",
}
