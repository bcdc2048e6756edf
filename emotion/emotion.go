package emotion

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Category is a collapsed emotion class. The source corpus annotates
// eleven categorical codes; excited and surprised fold into happy,
// frustrated into angry, and unlabelled utterances into other.
type Category int

const (
	Angry Category = iota
	Happy
	Sad
	Neutral
	Fear
	Disgust
	Other

	NumCategories = 7
)

func (c Category) String() string {
	switch c {
	case Angry:
		return "angry"
	case Happy:
		return "happy"
	case Sad:
		return "sad"
	case Neutral:
		return "neutral"
	case Fear:
		return "fear"
	case Disgust:
		return "disgust"
	case Other:
		return "other"
	}
	return "unknown"
}

var collapse = map[string]Category{
	"ang": Angry,
	"fru": Angry,
	"hap": Happy,
	"exc": Happy,
	"sur": Happy,
	"sad": Sad,
	"neu": Neutral,
	"fea": Fear,
	"dis": Disgust,
	"oth": Other,
	"xxx": Other,
}

// CollapseLabel maps a raw categorical code onto its collapsed class.
func CollapseLabel(code string) (Category, error) {
	c, ok := collapse[strings.ToLower(code)]
	if !ok {
		return 0, fmt.Errorf("unknown emotion code %q", code)
	}
	return c, nil
}

// OneHot encodes the category as a float vector.
func (c Category) OneHot() []float64 {
	v := make([]float64, NumCategories)
	v[c] = 1
	return v
}

// Annotation is one utterance-level label from an evaluation file:
// a time span, the utterance name, a categorical code and the three
// dimensional ratings (valence, arousal, dominance).
type Annotation struct {
	Start, End float64
	Name       string
	Code       string
	Valence    float64
	Arousal    float64
	Dominance  float64
}

// ParseEvaluation reads an emotion evaluation file. Only the summary
// lines are consumed; rater detail lines and comments are skipped.
//
//	[6.2901 - 8.2357]	Ses01F_impro01_F000	neu	[2.5000, 2.5000, 2.5000]
func ParseEvaluation(r io.Reader) ([]Annotation, error) {
	var out []Annotation
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
			continue
		}
		fields := strings.Fields(line)
		// [start - end] name code [v, a, d]
		if len(fields) != 8 || fields[1] != "-" {
			continue
		}
		a := Annotation{Name: fields[3], Code: fields[4]}
		var err error
		if a.Start, err = strconv.ParseFloat(strings.TrimPrefix(fields[0], "["), 64); err != nil {
			return nil, fmt.Errorf("bad start time in %q: %w", line, err)
		}
		if a.End, err = strconv.ParseFloat(strings.TrimSuffix(fields[2], "]"), 64); err != nil {
			return nil, fmt.Errorf("bad end time in %q: %w", line, err)
		}
		if a.Valence, err = strconv.ParseFloat(strings.Trim(fields[5], "[,"), 64); err != nil {
			return nil, fmt.Errorf("bad valence in %q: %w", line, err)
		}
		if a.Arousal, err = strconv.ParseFloat(strings.Trim(fields[6], ","), 64); err != nil {
			return nil, fmt.Errorf("bad arousal in %q: %w", line, err)
		}
		if a.Dominance, err = strconv.ParseFloat(strings.Trim(fields[7], "]"), 64); err != nil {
			return nil, fmt.Errorf("bad dominance in %q: %w", line, err)
		}
		out = append(out, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read evaluation file: %w", err)
	}
	return out, nil
}

// SessionOf extracts the session number from an utterance name of the
// form Ses01F_impro01_F000.
func SessionOf(name string) (int, error) {
	if len(name) < 5 || !strings.HasPrefix(name, "Ses") {
		return 0, fmt.Errorf("utterance name %q has no session prefix", name)
	}
	n, err := strconv.Atoi(name[3:5])
	if err != nil {
		return 0, fmt.Errorf("utterance name %q has no session prefix", name)
	}
	return n, nil
}
