package stubservice

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/kingrea/role2-builder/internal/exercise"
	"github.com/kingrea/role2-builder/internal/history"
)

const (
	contentTypeZip  = "application/zip"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// bundle is every artifact generated for one exercise.
type bundle struct {
	docs    map[history.DocType][]byte
	archive []byte
}

func buildBundle(cfg exercise.Config, warno string) (bundle, error) {
	if strings.TrimSpace(warno) == "" {
		warno = warnoText(cfg)
	}
	msel, err := buildXLSX(mselRows(cfg))
	if err != nil {
		return bundle{}, err
	}
	docs := map[history.DocType][]byte{history.DocMSEL: msel}
	narratives := map[history.DocType][]string{
		history.DocWarno:    strings.Split(warno, "\n"),
		history.DocAnnexQ:   annexQText(cfg),
		history.DocMEDROE:   medroeText(cfg),
		history.DocCaseBook: caseBookText(cfg),
	}
	for doc, paragraphs := range narratives {
		data, err := buildDOCX(paragraphs)
		if err != nil {
			return bundle{}, err
		}
		docs[doc] = data
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, doc := range history.DocTypes() {
		if err := writeZipEntry(zw, doc.FileName(cfg.Name), docs[doc]); err != nil {
			return bundle{}, err
		}
	}
	configJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return bundle{}, err
	}
	if err := writeZipEntry(zw, "exercise_config.json", configJSON); err != nil {
		return bundle{}, err
	}
	if err := zw.Close(); err != nil {
		return bundle{}, err
	}
	return bundle{docs: docs, archive: buf.Bytes()}, nil
}

func totalCases(cfg exercise.Config) int {
	total := 0
	for _, d := range cfg.Days {
		total += d.TotalPatients + d.MascalPatients()
	}
	return total
}

func warnoText(cfg exercise.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "WARNING ORDER - EXERCISE %s\n", strings.ToUpper(cfg.Name))
	fmt.Fprintf(&b, "1. SITUATION. %s AOR, %s region, threat level %s.\n", cfg.Environment, cfg.Region, cfg.ThreatLevel)
	fmt.Fprintf(&b, "2. MISSION. %s conducts Role 2 medical support for %d days.\n", cfg.UnitType, cfg.Duration)
	fmt.Fprintf(&b, "3. EXECUTION. Focus METs: %s.\n", joinOrNone(cfg.MissionTasks))
	fmt.Fprintf(&b, "4. SUPPORT. Functional footprint: %s.\n", joinOrNone(cfg.Footprint))
	return b.String()
}

func mselRows(cfg exercise.Config) [][]string {
	rows := [][]string{{"Day", "Operation", "Wave", "Patients", "Night Ops", "MASCAL", "Etiology", "Evac Status"}}
	for _, d := range cfg.Days {
		waves := max(d.TotalWaves, 1)
		for w := 1; w <= waves; w++ {
			patients := d.TotalPatients / waves
			if w <= d.TotalPatients%waves {
				patients++
			}
			rows = append(rows, []string{
				strconv.Itoa(d.Number), d.TacticalSetting, strconv.Itoa(w), strconv.Itoa(patients),
				yesNo(d.NightOps), "", "", d.EvacStatus,
			})
		}
		if d.IsMascal() {
			rows = append(rows, []string{
				strconv.Itoa(d.Number), d.TacticalSetting, "MASCAL", strconv.Itoa(d.MascalPatients()),
				yesNo(d.NightOps), "YES", d.Etiology(), d.EvacStatus,
			})
		}
	}
	return rows
}

func annexQText(cfg exercise.Config) []string {
	out := []string{"ANNEX Q (HEALTH SERVICES) TO EXERCISE " + strings.ToUpper(cfg.Name)}
	out = append(out, "Capabilities: "+joinOrNone(cfg.Footprint))
	for _, name := range slices.Sorted(maps.Keys(cfg.Specialists)) {
		out = append(out, fmt.Sprintf("%s: %d", name, cfg.Specialists[name]))
	}
	return out
}

func medroeText(cfg exercise.Config) []string {
	out := []string{"MEDICAL RULES OF ELIGIBILITY - " + strings.ToUpper(cfg.Name)}
	for _, d := range cfg.Days {
		if d.DetaineeOps {
			out = append(out, fmt.Sprintf("Day %d: detainee patients eligible for treatment.", d.Number))
		}
	}
	return out
}

func caseBookText(cfg exercise.Config) []string {
	out := []string{"CASE BOOK - " + strings.ToUpper(cfg.Name)}
	for _, d := range cfg.Days {
		line := fmt.Sprintf("Day %d: %d casualties in %d waves (%s)", d.Number, d.TotalPatients, d.TotalWaves, d.TacticalSetting)
		if d.IsMascal() {
			line += fmt.Sprintf("; MASCAL %s x%d", d.Etiology(), d.MascalPatients())
		}
		if d.CBRNDrill {
			line += "; CBRN drill"
		}
		out = append(out, line)
	}
	return out
}

func buildDOCX(paragraphs []string) ([]byte, error) {
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		body.WriteString(escapeXML(p))
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	files := []struct{ name, content string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
			`</Types>`},
		{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
			`</Relationships>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body.String() + `</w:body></w:document>`},
	}
	return zipFiles(files)
}

func buildXLSX(rows [][]string) ([]byte, error) {
	var sheet strings.Builder
	for r, row := range rows {
		fmt.Fprintf(&sheet, `<row r="%d">`, r+1)
		for c, cell := range row {
			fmt.Fprintf(&sheet, `<c r="%s%d" t="inlineStr"><is><t>%s</t></is></c>`, columnName(c), r+1, escapeXML(cell))
		}
		sheet.WriteString(`</row>`)
	}
	files := []struct{ name, content string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>` +
			`<Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>` +
			`</Types>`},
		{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>` +
			`</Relationships>`},
		{"xl/workbook.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
			`<sheets><sheet name="MSEL" sheetId="1" r:id="rId1"/></sheets></workbook>`},
		{"xl/_rels/workbook.xml.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>` +
			`</Relationships>`},
		{"xl/worksheets/sheet1.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>` +
			sheet.String() + `</sheetData></worksheet>`},
	}
	return zipFiles(files)
}

func zipFiles(files []struct{ name, content string }) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		if err := writeZipEntry(zw, f.name, []byte(f.content)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("stubservice: zip %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("stubservice: zip %s: %w", name, err)
	}
	return nil
}

func columnName(idx int) string {
	name := ""
	for idx >= 0 {
		name = string(rune('A'+idx%26)) + name
		idx = idx/26 - 1
	}
	return name
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}
