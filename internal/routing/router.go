// Package routing infers the medical specialty of a message by scoring it
// against fixed keyword tables.
package routing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/medibot/internal/safety"
)

// DomainGeneral is returned when no table matches.
const DomainGeneral = "general"

const maxMatchedKeywords = 10

const (
	ReasonEndocrinePriority = "Priority rule: diabetes/endocrine keywords detected"
	ReasonNoMatch           = "No keywords matched; defaulted to general"
)

type domainRule struct {
	domain   string
	keywords []string
}

// Declaration order breaks score ties. Some keywords carry a trailing space
// so that short stems only match as whole words mid-sentence.
var domainRules = []domainRule{
	{"cardiology", []string{"heart", "cardiac", "myocard", "arrhythm", "angina", "stroke", "hypertension", "blood pressure", "cholesterol", "artery", "aorta", "atrial", "ventric", "tachy", "brady"}},
	{"endocrinology", []string{"diabetes", "insulin", "glucose", "blood sugar", "thyroid", "tsh", "hypothy", "hyperthy", "adrenal", "cortisol", "hormone", "pituitary"}},
	{"neurology", []string{"brain", "neuro", "seizure", "epilep", "parkinson", "alzheimer", "migraine", "stroke", "nerve", "spinal cord", "multiple sclerosis", "ms ", "dementia"}},
	{"gastroenterology", []string{"stomach", "gastric", "liver", "hepat", "pancreas", "pancreatic", "colon", "bowel", "intestin", "ulcer", "crohn", "colitis", "diarrhea", "constipation", "ibs", "reflux", "gerd"}},
	{"dermatology", []string{"skin", "rash", "eczema", "psoriasis", "acne", "itch", "hives", "dermatitis", "lesion", "melanoma"}},
	{"orthopedics", []string{"bone", "joint", "fracture", "arthritis", "osteoporosis", "spine", "knee", "hip", "shoulder", "sprain", "ligament", "tendon"}},
	{"pulmonology", []string{"lung", "asthma", "copd", "bronch", "pneumonia", "breath", "respirat", "cough", "oxygen", "tuberculosis", "tb "}},
	{"nephrology", []string{"kidney", "renal", "nephro", "dialysis", "creatinine", "urea", "proteinuria", "hematuria", "glomerul"}},
	{"hematology", []string{"anemia", "hemoglobin", "platelet", "bleeding", "clot", "leukemia", "lymphoma", "blood disorder", "sickle", "thalassemia"}},
	{"oncology", []string{"cancer", "tumor", "carcinoma", "chemotherapy", "radiation", "metast", "malignant", "oncolog"}},
	{"infectious_disease", []string{"infection", "virus", "viral", "bacterial", "fever", "sepsis", "hiv", "aids", "influenza", "covid", "malaria", "dengue"}},
	{"obstetrics_gynecology", []string{"pregnan", "menstrual", "period", "uterus", "ovary", "ovarian", "cervix", "cervical", "vaginal", "gyne", "labor", "delivery"}},
	{"urology", []string{"urine", "urinary", "bladder", "prostate", "kidney stone", "erectile", "incontinence", "uti "}},
	{"ophthalmology", []string{"eye", "vision", "retina", "glaucoma", "cataract", "blind", "ocular", "macular"}},
	{"ent", []string{"ear", "nose", "throat", "sinus", "hearing", "tonsil", "larynx", "vertigo"}},
	{"psychiatry", []string{"depression", "anxiety", "bipolar", "schizophrenia", "panic", "ptsd", "suicide", "mental health", "adhd"}},
	{"pediatrics", []string{"child", "children", "infant", "newborn", "pediatric", "toddler"}},
	{"immunology_allergy", []string{"allergy", "allergic", "immune", "autoimmune", "lupus", "rheumatoid", "anaphylaxis"}},
	{"rheumatology", []string{"rheumatoid", "lupus", "vasculitis", "gout", "fibromyalgia", "scleroderma", "sjogren"}},
}

var endocrinePriority = []string{"diabetes", "insulin", "glucose", "blood sugar"}

// DomainMatch is one scored domain.
type DomainMatch struct {
	Domain          string   `json:"domain"`
	Score           int      `json:"score"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// Domains lists every domain the router can return, general excluded.
func Domains() []string {
	out := make([]string, 0, len(domainRules))
	for _, rule := range domainRules {
		out = append(out, rule.domain)
	}
	return out
}

// InferAll scores text against every table and returns the matching domains
// ordered by score, highest first.
func InferAll(text string) []DomainMatch {
	normalized := safety.Normalize(text)
	if normalized == "" {
		return nil
	}

	var results []DomainMatch
	for _, rule := range domainRules {
		var matched []string
		for _, kw := range rule.keywords {
			if strings.Contains(normalized, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}
		score := len(matched)
		if len(matched) > maxMatchedKeywords {
			matched = matched[:maxMatchedKeywords]
		}
		results = append(results, DomainMatch{Domain: rule.domain, Score: score, MatchedKeywords: matched})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// Infer returns the primary domain for text and a human-readable reason.
func Infer(text string) (string, string) {
	normalized := safety.Normalize(text)
	for _, term := range endocrinePriority {
		if strings.Contains(normalized, term) {
			return "endocrinology", ReasonEndocrinePriority
		}
	}

	results := InferAll(normalized)
	if len(results) == 0 {
		return DomainGeneral, ReasonNoMatch
	}
	top := results[0]
	return top.Domain, fmt.Sprintf("Matched keywords: %s", strings.Join(top.MatchedKeywords, ", "))
}

// IsGeneral reports whether domain carries no specialty information.
func IsGeneral(domain string) bool {
	d := strings.TrimSpace(strings.ToLower(domain))
	return d == "" || d == DomainGeneral
}
