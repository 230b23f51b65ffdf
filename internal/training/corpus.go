package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var ErrEmptyCorpus = errors.New("training: corpus has no examples")

// corpusEntity is the wire form the NLU trainer expects.
type corpusEntity struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Value  string `json:"value"`
	Entity string `json:"entity"`
}

type corpusExample struct {
	Text     string         `json:"text"`
	Intent   string         `json:"intent"`
	Entities []corpusEntity `json:"entities,omitempty"`
}

type corpusDocument struct {
	NLUData struct {
		CommonExamples []corpusExample `json:"common_examples"`
	} `json:"rasa_nlu_data"`
}

// BuildCorpus serializes mined examples into the trainer's NLU format.
// Examples are sorted by intent then text so the same data always
// produces the same bytes, which makes corpus versions diffable.
func BuildCorpus(examples []Example) ([]byte, error) {
	if len(examples) == 0 {
		return nil, ErrEmptyCorpus
	}

	sorted := append([]Example(nil), examples...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Intent != sorted[j].Intent {
			return sorted[i].Intent < sorted[j].Intent
		}
		return sorted[i].Text < sorted[j].Text
	})

	var doc corpusDocument
	doc.NLUData.CommonExamples = make([]corpusExample, 0, len(sorted))
	for _, ex := range sorted {
		entry := corpusExample{Text: ex.Text, Intent: ex.Intent}
		for _, ent := range ex.Entities {
			entry.Entities = append(entry.Entities, corpusEntity{
				Start:  ent.Start,
				End:    ent.End,
				Value:  ent.Value,
				Entity: ent.Entity,
			})
		}
		doc.NLUData.CommonExamples = append(doc.NLUData.CommonExamples, entry)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("training: marshal corpus: %w", err)
	}
	return data, nil
}
