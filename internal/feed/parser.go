package feed

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// listingDateFormats is tried in order; first successful parse wins.
// The feed mixes full RFC3339 timestamps, offset-less timestamps, and
// bare dates depending on the record's age.
var listingDateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
}

// ParseListingDate tries each known format and returns nil when none
// match, leaving the field unset rather than guessing.
func ParseListingDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, format := range listingDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ParseRecord converts one raw listing record into a typed
// Opportunity. It fails only on a missing notice id; every other field
// degrades to a zero value or "Unknown".
func ParseRecord(rec RawListingRecord) (Opportunity, error) {
	noticeID := rec.NoticeID()
	if noticeID == "" {
		return Opportunity{}, fmt.Errorf("record has no noticeId")
	}

	opp := Opportunity{
		NoticeID:           noticeID,
		SolicitationNumber: rec.SolicitationNumber(),
		Title:              stringField(rec, "title"),
		NAICSCode:          stringField(rec, "naicsCode"),
		Description:        stringField(rec, "description"),
		ExternalURL:        stringField(rec, "uiLink"),
		RFPType:            RFPTypeFromCode(stringField(rec, "type")),
	}

	opp.Agency, opp.SubAgency = parseOrgHierarchy(rec["organizationHierarchy"])

	opp.SetAside = stringField(rec, "typeOfSetAsideDescription")
	if opp.SetAside == "" {
		opp.SetAside = stringField(rec, "typeOfSetAside")
	}

	opp.PostedDate = ParseListingDate(stringField(rec, "postedDate"))
	opp.ResponseDeadline = ParseListingDate(stringField(rec, "responseDeadLine"))

	opp.ResourceLinks = CollectResourceLinks(rec)

	return opp, nil
}

// CollectResourceLinks gathers a record's attachment URLs: the declared
// resourceLinks list plus any document links embedded in the
// description HTML. The differ uses the same collection so attachment
// changes are judged on what the parser actually sees.
func CollectResourceLinks(rec RawListingRecord) []string {
	links := resourceLinks(rec["resourceLinks"])
	for _, link := range descriptionLinks(stringField(rec, "description")) {
		links = appendUnique(links, link)
	}
	return links
}

// ParseRecords converts a batch, logging and skipping malformed
// records. One bad record never aborts the batch.
func ParseRecords(recs []RawListingRecord) []Opportunity {
	opps := make([]Opportunity, 0, len(recs))
	for i, rec := range recs {
		opp, err := ParseRecord(rec)
		if err != nil {
			log.Printf("[Feed] Skipping record %d: %v", i, err)
			continue
		}
		opps = append(opps, opp)
	}
	return opps
}

// parseOrgHierarchy pulls agency and sub-agency from the first two
// levels of the organizational hierarchy list. Records missing the
// hierarchy get "Unknown".
func parseOrgHierarchy(raw interface{}) (agency, subAgency string) {
	agency, subAgency = "Unknown", "Unknown"

	entries, ok := raw.([]interface{})
	if !ok {
		return
	}

	type orgLevel struct {
		name  string
		level int
	}
	var levels []orgLevel
	for _, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		if name == "" {
			continue
		}
		level := 0
		if f, ok := entry["level"].(float64); ok {
			level = int(f)
		}
		levels = append(levels, orgLevel{name: name, level: level})
	}

	sort.SliceStable(levels, func(i, j int) bool { return levels[i].level < levels[j].level })

	if len(levels) > 0 {
		agency = levels[0].name
	}
	if len(levels) > 1 {
		subAgency = levels[1].name
	}
	return
}

// resourceLinks normalizes the feed's attachment list, which appears
// either as bare URL strings or as {url: ...} objects.
func resourceLinks(raw interface{}) []string {
	entries, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	var links []string
	for _, e := range entries {
		switch v := e.(type) {
		case string:
			links = appendUnique(links, v)
		case map[string]interface{}:
			if u, ok := v["url"].(string); ok {
				links = appendUnique(links, u)
			}
		}
	}
	return links
}

// descriptionLinks extracts anchor hrefs embedded in a description's
// HTML. Amendments often attach documents only as inline links, so
// these count toward the resource-link set.
func descriptionLinks(html string) []string {
	if !strings.Contains(html, "<") {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			links = appendUnique(links, href)
		}
	})
	return links
}

func stringField(rec RawListingRecord, key string) string {
	if v, ok := rec[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// appendUnique appends a string to a slice if it doesn't already exist (case-insensitive).
func appendUnique(list []string, v string) []string {
	vClean := strings.TrimSpace(v)
	if vClean == "" {
		return list
	}

	vLower := strings.ToLower(vClean)
	for _, existing := range list {
		if strings.ToLower(existing) == vLower {
			return list
		}
	}
	return append(list, vClean)
}
