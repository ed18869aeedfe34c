// Package types provides type definitions for structured data used throughout the plasmid sequencing service.
package types

import (
	"github.com/go-playground/validator/v10"
)

// Mode selects the analysis variant run by the external pipeline.
type Mode string

const (
	// ModeMedaka runs consensus calling over all reads.
	ModeMedaka Mode = "medaka"
	// ModeBiobin bins reads to references before consensus calling.
	ModeBiobin Mode = "biobin"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeMedaka || m == ModeBiobin
}

// Defaults used when a run request omits a value.
const (
	DefaultMedakaModel = "r941_min_high_g360"
	DefaultMaxLength   = 1000000
	DefaultMinLength   = 0
	DefaultMinQuality  = 7
	DefaultMarkerScore = 95
	DefaultKmerLength  = 12
	DefaultMatch       = 3
	DefaultMismatch    = -6
	DefaultGapOpen     = -10
	DefaultGapExtend   = -5
	DefaultContextMap  = 0.80
	DefaultFineMap     = 0.95
	DefaultMaxRegions  = 3
)

// RestrictionEnzymeRecord describes where an enzyme cuts one reference plasmid.
// Zero cut sites is valid; more than one is an input error.
type RestrictionEnzymeRecord struct {
	Enzyme   string `json:"enzyme"`
	CutSites []int  `json:"cut_sites"`
}

// RunOptions is the flat option bag submitted with a run.
type RunOptions struct {
	Mode        Mode                               `json:"mode" validate:"required,oneof=medaka biobin"`
	Name        string                             `json:"name"`
	MedakaModel string                             `json:"medakaModel" validate:"required"`
	Double      bool                               `json:"double"`
	Trim        bool                               `json:"trim"`
	Filter      bool                               `json:"filter"`
	MaxLen      int                                `json:"maxLen" validate:"gte=0"`
	MinLen      int                                `json:"minLen" validate:"gte=0"`
	MinQual     float64                            `json:"minQual" validate:"gte=0"`
	MarkerScore int                                `json:"markerScore"`
	KmerLen     int                                `json:"kmerLen" validate:"gte=1"`
	Match       int                                `json:"match"`
	Mismatch    int                                `json:"mismatch"`
	GapOpen     int                                `json:"gapOpen"`
	GapExtend   int                                `json:"gapExtend"`
	ContextMap  float64                            `json:"contextMap" validate:"gte=0,lte=1"`
	FineMap     float64                            `json:"fineMap" validate:"gte=0,lte=1"`
	MaxRegions  int                                `json:"maxRegions" validate:"gte=1"`
	FastaREData map[string]RestrictionEnzymeRecord `json:"fastaREData"`
}

// DefaultRunOptions returns options populated with the service defaults.
// Decoding a request body over the result keeps defaults for omitted keys.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		Mode:        ModeMedaka,
		MedakaModel: DefaultMedakaModel,
		MaxLen:      DefaultMaxLength,
		MinLen:      DefaultMinLength,
		MinQual:     DefaultMinQuality,
		MarkerScore: DefaultMarkerScore,
		KmerLen:     DefaultKmerLength,
		Match:       DefaultMatch,
		Mismatch:    DefaultMismatch,
		GapOpen:     DefaultGapOpen,
		GapExtend:   DefaultGapExtend,
		ContextMap:  DefaultContextMap,
		FineMap:     DefaultFineMap,
		MaxRegions:  DefaultMaxRegions,
	}
}

// Validate validates the RunOptions using the validator.
func (o *RunOptions) Validate() error {
	validate := validator.New()
	return validate.Struct(o)
}

// BiobinOptions records the binning parameters of a biobin run.
type BiobinOptions struct {
	MarkerScore int     `json:"marker_score"`
	KmerLength  int     `json:"kmer_length"`
	Match       int     `json:"match"`
	Mismatch    int     `json:"mismatch"`
	GapOpen     int     `json:"gap_open"`
	GapExtend   int     `json:"gap_extend"`
	ContextMap  float64 `json:"context_map"`
	FineMap     float64 `json:"fine_map"`
	MaxRegions  int     `json:"max_regions"`
}

// NanofiltOptions records the read filter parameters of a filtered run.
type NanofiltOptions struct {
	MaxLength  int     `json:"max_length"`
	MinLength  int     `json:"min_length"`
	MinQuality float64 `json:"min_quality"`
}

// EnzymeTableEntry is one row of the restriction enzyme table artifact.
type EnzymeTableEntry struct {
	FileName string `json:"fileName" yaml:"fileName"`
	CutSite  int    `json:"cut-site" yaml:"cut-site"`
	Enzyme   string `json:"enzyme,omitempty" yaml:"enzyme,omitempty"`
}

// EnzymeTable is keyed by reference basename with extension and compression suffix stripped.
type EnzymeTable map[string]EnzymeTableEntry

// RunParameters is the durable record of every option used for one run.
// It is written once to run_params.json and never mutated.
type RunParameters struct {
	Mode                  Mode             `json:"mode"`
	Name                  string           `json:"name"`
	Date                  string           `json:"date"`
	SequencingReadFiles   []string         `json:"sequencingReadFiles"`
	PlasmidReferenceFiles []string         `json:"plasmidReferenceFiles"`
	PlasmidEnzymeData     EnzymeTable      `json:"plasmidEnzymeData"`
	MedakaConsensusModel  string           `json:"medakaConsensusModel,omitempty"`
	Double                bool             `json:"double,omitempty"`
	Trim                  bool             `json:"trim,omitempty"`
	Filter                bool             `json:"filter,omitempty"`
	BiobinOptions         *BiobinOptions   `json:"biobinOptions,omitempty"`
	NanofiltOptions       *NanofiltOptions `json:"nanofiltOptions,omitempty"`
}

// RenameMap maps a final on-disk filename to the name it was uploaded under.
type RenameMap map[string]string
