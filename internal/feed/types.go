package feed

import (
	"fmt"
	"time"
)

// RawListingRecord is the untouched upstream payload for a single
// opportunity listing, keyed by noticeId. It is stored verbatim in the
// snapshot log; only the parser and the differ interpret its fields.
type RawListingRecord map[string]interface{}

// NoticeID returns the listing identifier, or "" if the record has none.
func (r RawListingRecord) NoticeID() string {
	if v, ok := r["noticeId"].(string); ok {
		return v
	}
	return ""
}

// SolicitationNumber returns the human-facing reference number.
func (r RawListingRecord) SolicitationNumber() string {
	if v, ok := r["solicitationNumber"].(string); ok {
		return v
	}
	return ""
}

// RFPType is the closed set of procurement notice types. The upstream
// feed encodes these as one-letter codes; RFPTypeFromCode maps them.
type RFPType string

const (
	RFPTypeSolicitation     RFPType = "solicitation"
	RFPTypePresolicitation  RFPType = "presolicitation"
	RFPTypeCombinedSynopsis RFPType = "combined_synopsis"
	RFPTypeSourcesSought    RFPType = "sources_sought"
	RFPTypeSpecialNotice    RFPType = "special_notice"
	RFPTypeAwardNotice      RFPType = "award_notice"
	RFPTypeJustification    RFPType = "justification"
)

func (t RFPType) String() string {
	return string(t)
}

var ptypeCodes = map[string]RFPType{
	"o": RFPTypeSolicitation,
	"p": RFPTypePresolicitation,
	"k": RFPTypeCombinedSynopsis,
	"r": RFPTypeSourcesSought,
	"s": RFPTypeSpecialNotice,
	"a": RFPTypeAwardNotice,
	"u": RFPTypeJustification,
}

// RFPTypeFromCode maps a one-letter procurement notice code to its
// RFPType. Unknown codes map to solicitation.
func RFPTypeFromCode(code string) RFPType {
	if t, ok := ptypeCodes[code]; ok {
		return t
	}
	return RFPTypeSolicitation
}

// Opportunity is the typed projection of a raw listing record.
type Opportunity struct {
	NoticeID           string     `json:"notice_id"`
	SolicitationNumber string     `json:"solicitation_number"`
	Title              string     `json:"title"`
	Agency             string     `json:"agency"`
	SubAgency          string     `json:"sub_agency"`
	PostedDate         *time.Time `json:"posted_date"`
	ResponseDeadline   *time.Time `json:"response_deadline"`
	NAICSCode          string     `json:"naics_code"`
	SetAside           string     `json:"set_aside"`
	RFPType            RFPType    `json:"rfp_type"`
	Description        string     `json:"description"`
	ResourceLinks      []string   `json:"resource_links"`
	ExternalURL        string     `json:"external_url"`
}

// SearchParams describes one upstream feed query. NoticeID narrows
// the search to a single tracked listing.
type SearchParams struct {
	Keyword    string
	NoticeID   string
	DaysBack   int
	NAICSCodes []string
	SetAsides  []string
	PTypes     []string
	Limit      int
	Sort       string
}

// FeedAPIError carries the upstream status code and body for
// diagnostics. Retryable marks transient conditions (timeouts, 5xx,
// rate limiting) that an outer scheduler may requeue.
type FeedAPIError struct {
	StatusCode int
	Body       string
	Retryable  bool
}

func (e *FeedAPIError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("feed API error (%s): status %d: %s", kind, e.StatusCode, e.Body)
}
