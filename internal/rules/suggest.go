package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/joss/bidsmap/internal/series"
)

// Suggestion is a heuristic datatype/suffix guess for one series, used
// to seed the generated config. It is never applied directly; the user
// reviews the generated rules.
type Suggestion struct {
	Exclude  bool
	Reason   string
	Datatype string
	Suffix   string
	Entities map[string]string
}

// searchTerms maps datatype -> suffix -> normalized substrings that
// indicate the suffix. Detection heuristics live here, not in the
// schema: the schema defines what is valid, not how to recognize it.
var searchTerms = map[string]map[string][]string{
	"anat": {
		"T1w": {
			"t1w", "t1_w", "tfl3d", "tfl_3d", "mprage", "mp_rage", "spgr",
			"t1mpr", "t1_mpr", "anatt1", "anat_t1", "3dt1", "3d_t1", "t1_", "_t1",
		},
		"T2w":     {"t2w", "t2_w", "anatt2", "anat_t2", "3dt2", "3d_t2", "t2spc", "t2_spc", "t2_", "_t2"},
		"FLAIR":   {"flair", "dark_fluid"},
		"T2starw": {"t2starw", "t2star", "qsm", "swi"},
		"PDw":     {"pdw", "pd_w", "proton_density"},
		"angio":   {"angio", "tof", "mra"},
		"MP2RAGE": {"mp2rage"},
		"UNIT1":   {"unit1"},
	},
	"func": {
		"bold":  {"bold", "func", "fmri", "f_mri", "rsfmri", "rs_fmri", "task", "rest"},
		"sbref": {"sbref", "sb_ref", "singleband"},
	},
	"dwi": {
		"dwi":   {"dwi", "dti", "dmri", "d_mri", "diffusion", "hardi"},
		"sbref": {"b0", "bzero", "b_zero"},
	},
	"fmap": {
		"epi": {
			"fmap_spin", "fmap_se", "fmap_ap", "fmap_pa", "spinecho",
			"spin_echo", "pepolar", "topup", "distortion", "b0map", "b0_map",
		},
		"phasediff":  {"phasediff", "phase_diff", "phdiff"},
		"magnitude1": {"magnitude1", "mag1", "mag_1"},
		"fieldmap":   {"fieldmap", "field_map", "grefieldmap", "gre_field_map"},
	},
}

var excludeTerms = []string{
	"localizer", "scout", "survey", "loc_",
	"trace", "_fa_", "adc", "colfa", "tensor",
}

// anatSuffixOrder checks specific sequences before generic T1/T2 terms.
var anatSuffixOrder = []string{"MP2RAGE", "UNIT1", "T1w", "T2w", "FLAIR", "T2starw", "PDw", "angio"}

func normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, " ", "_")
	return strings.ReplaceAll(text, "-", "_")
}

func containsAny(text string, terms []string) string {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return term
		}
	}
	return ""
}

// Suggest guesses a BIDS classification from a descriptor's metadata,
// dwi before fmap before func before anat, the most discriminating
// signals first.
func Suggest(d *series.Descriptor) Suggestion {
	desc := normalize(d.SeriesDescription)
	proto := normalize(d.ProtocolName)
	combined := desc + "|" + proto

	if term := containsAny(combined, excludeTerms); term != "" {
		return Suggestion{Exclude: true, Reason: "matches exclusion pattern " + term}
	}

	if s, ok := suggestDWI(d, combined); ok {
		return s
	}
	if s, ok := suggestFmap(d, combined); ok {
		return s
	}
	if s, ok := suggestFunc(d, combined); ok {
		return s
	}
	if s, ok := suggestAnat(d, desc, combined); ok {
		return s
	}
	return Suggestion{}
}

func suggestDWI(d *series.Descriptor, text string) (Suggestion, bool) {
	hasBvec := false
	for _, f := range d.Files {
		if strings.HasSuffix(f, ".bvec") {
			hasBvec = true
			break
		}
	}
	if containsAny(text, searchTerms["dwi"]["dwi"]) == "" && !hasBvec {
		return Suggestion{}, false
	}
	if d.NumVolumes > 1 {
		return suggestion(d, "dwi", "dwi"), true
	}
	if containsAny(text, searchTerms["dwi"]["sbref"]) != "" {
		return suggestion(d, "dwi", "sbref"), true
	}
	return Suggestion{}, false
}

func suggestFmap(d *series.Descriptor, text string) (Suggestion, bool) {
	if containsAny(text, searchTerms["fmap"]["epi"]) != "" {
		if d.NumVolumes <= 10 && d.EchoNumber == 0 {
			return suggestion(d, "fmap", "epi"), true
		}
	}
	for _, suffix := range []string{"phasediff", "magnitude1", "fieldmap"} {
		if containsAny(text, searchTerms["fmap"][suffix]) != "" {
			return suggestion(d, "fmap", suffix), true
		}
	}
	return Suggestion{}, false
}

func suggestFunc(d *series.Descriptor, text string) (Suggestion, bool) {
	for _, t := range d.ImageType {
		switch t {
		case "DERIVED", "PERFUSION", "DIFFUSION", "ASL":
			return Suggestion{}, false
		}
	}
	if containsAny(text, searchTerms["func"]["bold"]) == "" {
		return Suggestion{}, false
	}
	if d.NDim == 4 && d.NumVolumes > 1 && d.RepetitionTime > 0 {
		return suggestion(d, "func", "bold"), true
	}
	if d.NDim == 3 && d.NumVolumes == 1 && containsAny(text, searchTerms["func"]["sbref"]) != "" {
		return suggestion(d, "func", "sbref"), true
	}
	return Suggestion{}, false
}

func suggestAnat(d *series.Descriptor, desc, text string) (Suggestion, bool) {
	if d.NDim != 3 {
		return Suggestion{}, false
	}
	for _, suffix := range anatSuffixOrder {
		if containsAny(text, searchTerms["anat"][suffix]) == "" {
			continue
		}
		switch suffix {
		case "T1w":
			if strings.Contains(desc, "inv1") || strings.Contains(desc, "inv2") {
				continue
			}
		case "UNIT1":
			if !hasImageType(d, "UNI") {
				continue
			}
		case "MP2RAGE":
			if _, ok := d.Sidecar["InversionTime"]; !ok {
				continue
			}
		}
		return suggestion(d, "anat", suffix), true
	}
	return Suggestion{}, false
}

func hasImageType(d *series.Descriptor, want string) bool {
	for _, t := range d.ImageType {
		if t == want {
			return true
		}
	}
	return false
}

func suggestion(d *series.Descriptor, datatype, suffix string) Suggestion {
	return Suggestion{
		Datatype: datatype,
		Suffix:   suffix,
		Entities: suggestEntities(d, datatype),
	}
}

var (
	taskPattern = regexp.MustCompile(`task[_-]?([a-z0-9]+)`)
	runPattern  = regexp.MustCompile(`run[_-]?(\d+)`)
	echoPattern = regexp.MustCompile(`echo[_-]?(\d+)|_e(\d+)`)
	acqPattern  = regexp.MustCompile(`acq[_-]?([a-z0-9]+)|(highres|lowres|mb\d+)`)
	dirPattern  = regexp.MustCompile(`[_-](ap|pa|lr|rl|si|is)([_-]|$)`)
)

// suggestEntities pulls entity labels out of the series description and
// protocol name. Only labels with textual evidence are emitted.
func suggestEntities(d *series.Descriptor, datatype string) map[string]string {
	text := normalize(d.SeriesDescription) + "|" + normalize(d.ProtocolName)
	entities := map[string]string{}

	if m := taskPattern.FindStringSubmatch(text); m != nil {
		entities["task"] = m[1]
	} else if datatype == "func" {
		if strings.Contains(text, "rest") || strings.Contains(text, "rsfmri") {
			entities["task"] = "rest"
		}
	}

	if d.Direction != "" {
		entities["direction"] = d.Direction
	} else if m := dirPattern.FindStringSubmatch(text); m != nil {
		entities["direction"] = strings.ToUpper(m[1])
	}

	if m := runPattern.FindStringSubmatch(text); m != nil {
		run, _ := strconv.Atoi(m[1])
		entities["run"] = zeroPad(run)
	}

	if d.EchoNumber > 0 {
		entities["echo"] = strconv.Itoa(d.EchoNumber)
	} else if m := echoPattern.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			entities["echo"] = m[1]
		} else {
			entities["echo"] = m[2]
		}
	}

	if m := acqPattern.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			entities["acquisition"] = m[1]
		} else {
			entities["acquisition"] = m[2]
		}
	}

	if len(entities) == 0 {
		return nil
	}
	return entities
}

func zeroPad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
