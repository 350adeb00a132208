package report

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/nciocpl/ebms/internal/store"
)

// RelatedSheet is the worksheet the related citations are written to.
const RelatedSheet = "Related"

// ArticleSource streams articles imported since a date. *store.DB
// implements it.
type ArticleSource interface {
	ArticlesImportedSince(ctx context.Context, since string, fn func(store.ArticleSource) error) error
}

// RelatedCitation is one CommentsCorrections entry of an EBMS article.
type RelatedCitation struct {
	PMID      string
	Journal   string
	Published string
	Imported  string
	Related   string
	RefType   string
	RefSource string
}

type pubmedArticle struct {
	Corrections []commentsCorrections `xml:"MedlineCitation>CommentsCorrectionsList>CommentsCorrections"`
}

type commentsCorrections struct {
	RefType   string `xml:"RefType,attr"`
	RefSource string `xml:"RefSource"`
	PMID      string `xml:"PMID"`
}

// ParseRelated returns the related citations listed in an article's
// PubMed XML.
func ParseRelated(a store.ArticleSource) ([]RelatedCitation, error) {
	var doc pubmedArticle
	if err := xml.Unmarshal(a.XML, &doc); err != nil {
		return nil, fmt.Errorf("article %s: %w", a.PMID, err)
	}
	imported := a.Imported
	if len(imported) > 10 {
		imported = imported[:10]
	}
	var out []RelatedCitation
	for _, cc := range doc.Corrections {
		out = append(out, RelatedCitation{
			PMID:      a.PMID,
			Journal:   a.Journal,
			Published: a.Published,
			Imported:  imported,
			Related:   cc.PMID,
			RefType:   cc.RefType,
			RefSource: cc.RefSource,
		})
	}
	return out, nil
}

// RelatedCitations writes a spreadsheet of the related citations of
// every article imported on or after since. Articles whose XML cannot be
// parsed are logged and skipped.
func RelatedCitations(ctx context.Context, src ArticleSource, since, path string, logger *log.Logger) ([]RelatedCitation, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[report] ", log.LstdFlags)
	}
	var rows []RelatedCitation
	err := src.ArticlesImportedSince(ctx, since, func(a store.ArticleSource) error {
		related, err := ParseRelated(a)
		if err != nil {
			logger.Printf("skipping %v", err)
			return nil
		}
		rows = append(rows, related...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := saveRelated(path, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

var relatedHeadings = []string{"PMID", "Journal", "Published", "Imported", "Related", "Ref Type", "Ref Source"}

func saveRelated(path string, rows []RelatedCitation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RelatedSheet); err != nil {
		return err
	}
	if err := writeHeadings(f, RelatedSheet, relatedHeadings); err != nil {
		return err
	}
	for r, c := range rows {
		for col, v := range []string{c.PMID, c.Journal, c.Published, c.Imported, c.Related, c.RefType, c.RefSource} {
			if v == "" {
				continue
			}
			if err := setCell(f, RelatedSheet, col+1, r+2, v); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
