package history

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDocType is returned by ParseDocType for keys outside the fixed set.
var ErrUnknownDocType = errors.New("history: unknown document type")

// DocType identifies one document of a generated package.
type DocType string

const (
	DocMSEL     DocType = "msel"
	DocWarno    DocType = "warno"
	DocAnnexQ   DocType = "annex_q"
	DocMEDROE   DocType = "medroe"
	DocCaseBook DocType = "case_book"
)

type docInfo struct {
	ext   string
	label string
}

var docTypes = map[DocType]docInfo{
	DocMSEL:     {ext: "xlsx", label: "MSEL"},
	DocWarno:    {ext: "docx", label: "WARNO"},
	DocAnnexQ:   {ext: "docx", label: "Annex_Q"},
	DocMEDROE:   {ext: "docx", label: "MEDROE"},
	DocCaseBook: {ext: "docx", label: "Case_Book"},
}

// DocTypes lists every document type in display order.
func DocTypes() []DocType {
	return []DocType{DocMSEL, DocWarno, DocAnnexQ, DocMEDROE, DocCaseBook}
}

// ParseDocType validates a key from user input.
func ParseDocType(key string) (DocType, error) {
	d := DocType(strings.ToLower(strings.TrimSpace(key)))
	if _, ok := docTypes[d]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownDocType, key)
	}
	return d, nil
}

// Extension returns the file extension. It panics for a value that did not
// come from the constants or ParseDocType.
func (d DocType) Extension() string { return d.info().ext }

// Label returns the label used in download file names.
func (d DocType) Label() string { return d.info().label }

// FileName builds "<exercise>_<Label>.<ext>".
func (d DocType) FileName(exerciseName string) string {
	info := d.info()
	return fmt.Sprintf("%s_%s.%s", strings.TrimSpace(exerciseName), info.label, info.ext)
}

func (d DocType) info() docInfo {
	info, ok := docTypes[d]
	if !ok {
		panic(fmt.Sprintf("history: unrecognised document type %q", string(d)))
	}
	return info
}
