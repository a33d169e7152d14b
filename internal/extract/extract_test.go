package extract

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"cohortlens/internal/config"
	"cohortlens/internal/corpus"
	"cohortlens/internal/errors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(config.EngineConfig{}, errors.Discard())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func names(mentions []Mention) []string {
	out := make([]string, len(mentions))
	for i, m := range mentions {
		out[i] = m.CanonicalName
	}
	return out
}

func TestExtractText(t *testing.T) {
	e := newTestEngine(t)

	Convey("Given the built-in rule pack", t, func() {
		Convey("An aspirational sentence yields nothing", func() {
			So(e.ExtractText("r1", "I hope to grow through diverse experiences"), ShouldBeEmpty)
		})

		Convey("A concrete project sentence yields one mention", func() {
			got := e.ExtractText("r1", "Led a 5-person web-platform project")
			So(got, ShouldHaveLength, 1)
			So(got[0].CanonicalName, ShouldContainSubstring, "project")
			So(got[0].CanonicalName, ShouldEqual, "web-platform project")
			So(got[0].Category, ShouldEqual, "project")
			So(got[0].Prefix, ShouldEqual, "web-platform")
			So(got[0].OwnerID, ShouldEqual, "r1")
			So(got[0].Keywords, ShouldContain, "leadership")
		})

		Convey("A stative sentence without an action verb is rejected", func() {
			So(e.ExtractText("r1", "The atmosphere of our club was friendly"), ShouldBeEmpty)
		})

		Convey("Trailing outcome clauses are stripped from the excerpt", func() {
			got := e.ExtractText("r1", "Built a backend project for the campus library, resulting in 30% faster checkouts")
			So(got, ShouldHaveLength, 1)
			So(got[0].CanonicalName, ShouldEqual, "backend project")
			So(got[0].RawExcerpt, ShouldEqual, "Built a backend project for the campus library")
		})

		Convey("Sentence-final passive endings are stripped", func() {
			got := e.ExtractText("r1", "A mobile banking project was completed.")
			So(got, ShouldHaveLength, 1)
			So(got[0].CanonicalName, ShouldEqual, "banking project")
			So(got[0].RawExcerpt, ShouldEqual, "A mobile banking project")
		})

		Convey("Leading boilerplate is stripped", func() {
			got := e.ExtractText("r1", "During my time at Acme, I built a logistics dashboard project")
			So(got, ShouldHaveLength, 1)
			So(got[0].CanonicalName, ShouldEqual, "dashboard project")
			So(got[0].RawExcerpt, ShouldEqual, "I built a logistics dashboard project")
		})

		Convey("Enumerations are split into one mention per segment", func() {
			got := e.ExtractText("r1", "Joined a robotics club, a data hackathon and a mobile project")
			So(names(got), ShouldResemble, []string{"robotics club", "data hackathon", "mobile project"})
			So(got[1].RawExcerpt, ShouldEqual, "a data hackathon")
			So(got[2].RawExcerpt, ShouldEqual, "a mobile project")
		})

		Convey("Prefix reject rules drop weak prefixes", func() {
			So(e.ExtractText("r1", "Participated in various projects across the semester"), ShouldBeEmpty)
			So(e.ExtractText("r1", "Finished the 2023 project with my classmates"), ShouldBeEmpty)
			So(e.ExtractText("r1", "Joined the growth project with two classmates"), ShouldBeEmpty)
			So(e.ExtractText("r1", "Built an x project with friends"), ShouldBeEmpty)
		})

		Convey("Excerpts below the minimum length are discarded", func() {
			So(e.ExtractText("r1", "AI project"), ShouldBeEmpty)
		})

		Convey("Korean descriptions match attached suffixes", func() {
			got := e.ExtractText("r1", "교내 해커톤에서 우수상을 받았습니다.")
			So(got, ShouldHaveLength, 1)
			So(got[0].CanonicalName, ShouldEqual, "교내 hackathon")
			So(got[0].Keywords, ShouldContain, "achievement")

			So(e.ExtractText("r1", "백엔드 개발자가 되고 싶습니다"), ShouldBeEmpty)
		})

		Convey("Each sentence of a description is handled separately", func() {
			got := e.ExtractText("r1", "I want to lead a startup project. Built a payment gateway project in Go!")
			So(names(got), ShouldResemble, []string{"gateway project"})
		})
	})
}

func TestExtractRecord(t *testing.T) {
	e := newTestEngine(t)

	Convey("Given a record with several activity labels", t, func() {
		record := corpus.Record{
			ID: "applicant-7",
			Activities: map[string][]string{
				"projects": {"Led a 5-person web-platform project", "   "},
				"awards":   {"Won first place at a campus hackathon"},
			},
		}

		Convey("Every description contributes mentions owned by the record", func() {
			got := e.Extract(record)
			So(names(got), ShouldResemble, []string{"campus hackathon", "web-platform project"})
			for _, m := range got {
				So(m.OwnerID, ShouldEqual, "applicant-7")
			}
		})

		Convey("A record without activities yields nothing", func() {
			So(e.Extract(corpus.Record{ID: "empty"}), ShouldBeEmpty)
		})
	})
}

func TestVocabularyHelpers(t *testing.T) {
	e := newTestEngine(t)

	Convey("Keyword labels are matched on word boundaries", t, func() {
		So(e.Keywords("Our team analyzed survey data"), ShouldResemble, []string{"analysis", "collaboration"})
		So(e.Keywords("steamed dumplings"), ShouldBeEmpty)
		So(e.KeywordLabels(), ShouldContain, "problem-solving")
	})

	Convey("Skills are matched against the skill vocabulary", t, func() {
		So(e.Skills("Built APIs with Python, Docker and node.js"), ShouldResemble, []string{"docker", "node.js", "python"})
		So(e.Skills("no tooling mentioned here"), ShouldBeEmpty)
	})
}

func TestRejectionsAreLoggedWithRuleName(t *testing.T) {
	Convey("Given an engine logging at debug level", t, func() {
		var buf bytes.Buffer
		e, err := NewEngine(config.EngineConfig{}, errors.NewWithWriter(&buf, slog.LevelDebug))
		So(err, ShouldBeNil)

		e.ExtractText("r9", "I would like to join a startup")
		So(buf.String(), ShouldContainSubstring, `"rule":"aspirational"`)
		So(buf.String(), ShouldContainSubstring, `"owner_id":"r9"`)
	})
}

func TestLoadRules(t *testing.T) {
	Convey("Given the rule pack loader", t, func() {
		Convey("The built-in pack is valid", func() {
			pack, err := DefaultRules()
			So(err, ShouldBeNil)
			So(pack.Categories, ShouldNotBeEmpty)
			So(pack.SynthesisTemplates("project"), ShouldNotBeEmpty)
			So(pack.SynthesisTemplates("no such category"), ShouldResemble, pack.Templates["default"])
		})

		Convey("An overlay replaces the keys it defines and keeps the rest", func() {
			path := filepath.Join(t.TempDir(), "rules.yaml")
			overlay := "categories:\n  - name: gig\n    suffixes: [gig]\n"
			So(os.WriteFile(path, []byte(overlay), 0o644), ShouldBeNil)

			pack, err := LoadRules(path)
			So(err, ShouldBeNil)
			So(pack.Categories, ShouldHaveLength, 1)
			So(pack.Stopwords, ShouldNotBeEmpty)

			e, err := NewEngineWithRules(pack, config.EngineConfig{}, nil)
			So(err, ShouldBeNil)
			So(names(e.ExtractText("r1", "Played a weekend jazz gig downtown")), ShouldResemble, []string{"jazz gig"})
			So(e.ExtractText("r1", "Led a 5-person web-platform project"), ShouldBeEmpty)
		})

		Convey("An overlay with a broken pattern is rejected", func() {
			path := filepath.Join(t.TempDir(), "rules.yaml")
			So(os.WriteFile(path, []byte("boilerplate: ['(']\n"), 0o644), ShouldBeNil)

			_, err := LoadRules(path)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, errors.ErrCodeRulePackInvalid)
		})

		Convey("A missing overlay file is an error", func() {
			_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
			So(err, ShouldNotBeNil)
		})
	})
}
