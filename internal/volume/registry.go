// Package volume holds the fixed rulebook volume registry and the LLM-driven volume selector
// used to narrow retrieval to the most relevant source files.
package volume

import "github.com/hyperjump/rulebook/internal/retrieval"

// CommonVolumeFile is the source file of the cross-sectoral Common Volume.
const CommonVolumeFile = "rulebook_commonvol.pdf"

// Descriptor is one top-level partition of the rulebook.
type Descriptor struct {
	Name        string   `json:"name"`
	Number      string   `json:"volume_number,omitempty"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
}

// Scored is a descriptor with its relevance score for one query.
type Scored struct {
	Descriptor Descriptor `json:"volume"`
	Score      float64    `json:"score"`
}

var registry = []Descriptor{
	{
		Name:   "Volume 1: Conventional Banks",
		Number: "1",
		Description: "Regulates conventional bank licensees, providing a comprehensive framework designed to ensure their safety, soundness, and stability. " +
			"Covers the full lifecycle of a bank, from authorisation and licensing to ongoing supervision and reporting. " +
			"Key topics include: " +
			"Prudential Requirements (Capital Adequacy based on Basel, Risk Management for credit, market, operational, and interest rate risk, Liquidity Risk Management); " +
			"Governance and Controls (High-Level Controls, corporate governance, ICAAP); " +
			"Business Operations and Conduct (Business Conduct, Financial Crime prevention, disclosure standards).",
	},
	{
		Name:   "Volume 2: Islamic Banks",
		Number: "2",
		Description: "Provides the regulatory framework for Islamic bank licensees, ensuring operations are compliant with Shari'a principles while maintaining financial stability. " +
			"Mirrors many prudential areas in Volume 1 but is adapted for Islamic finance. " +
			"Key topics include: " +
			"Shari'a Compliance (Shari'a Supervisory Board, product compliance); " +
			"Prudential Requirements (Capital Adequacy for PSIA, equity investment risk, rate of return risk, displaced commercial risk); " +
			"Core Banking Regulation (authorisation, Shari'a governance, business conduct, financial crime, reporting).",
	},
	{
		Name:   "Volume 3: Insurance",
		Number: "3",
		Description: "Governs all insurance licensees to protect policyholders and ensure market stability, aligning with IAIS standards. " +
			"Regulates insurance/reinsurance firms, takaful/retakaful operators, brokers, consultants, managers, and captive insurers. " +
			"Key topics include: " +
			"Prudential and Solvency Rules (Capital Adequacy, solvency margins, asset/liability valuation, indemnity coverage); " +
			"Operational and Conduct Rules (authorisation, risk management, business conduct, Client Money, disclosure, Takaful principles). " +
			"This volume contains module CL, module FC, and a list of all risk categories.",
	},
	{
		Name:   "Volume 4: Investment Business",
		Number: "4",
		Description: "Establishes the regulatory framework for investment firm licensees, categorised by permitted activities (dealing, arranging, advising, safeguarding assets). " +
			"Designed to protect investors and ensure market discipline, in line with IOSCO principles. " +
			"Key topics include: " +
			"Licensing Categories (three categories with varying requirements); " +
			"Prudential and Client Protection (Capital Adequacy, safeguarding Client Assets, business conduct); " +
			"Governance and Competency (authorisation, high-level controls, risk management, financial crime prevention, staff competency). " +
			"This volume includes the 10 principles of business, module CL, and module FC.",
	},
	{
		Name:   "Volume 5: Specialised Licensees",
		Number: "5",
		Description: "Covers specialised licensees whose activities do not fall into banking, insurance, or investment firm categories. " +
			"Regulations are tailored to each activity's nature and risks. " +
			"Key topics and regulated entities include: " +
			"Administrators (fund/registrar services), Financing Companies, Money Changers, Trust Service Providers, Microfinance Institutions; " +
			"Activity-Specific Regulation (authorisation, licensing, ongoing obligations); " +
			"Core Supervisory Themes (fit and proper criteria, financial resources, controls, business conduct).",
	},
	{
		Name:   "Volume 6: Capital Markets",
		Number: "6",
		Description: "Regulates Bahrain's capital markets to ensure transparency, fairness, and order, protecting investors and fostering capital formation. " +
			"Scope includes CBB licensees, issuers, and market operators. " +
			"Key topics include: " +
			"Securities Regulation (offering, listing, trading of securities); " +
			"Market Integrity (market conduct, prohibition of insider dealing/abuse); " +
			"Corporate Actions and Market Participants (M&A, authorisation/supervision of exchanges and clearing houses).",
	},
	{
		Name:   "Volume 7: Collective Investment Undertakings (CIUs)",
		Number: "7",
		Description: "Sets out the regulatory framework for CIUs (investment funds), designed to protect fund participants. " +
			"Key topics include: " +
			"Fund Classification (Bahrain/overseas-domiciled, Retail CIUs, Exempt CIUs, PIUs); " +
			"Key Roles and Responsibilities (operator, custodian, administrator, placement agent); " +
			"Fund Lifecycle (establishment, prospectus, reporting, mergers, winding-up, GCC Fund Passporting Regime).",
	},
	{
		Name: "Common Volume",
		Description: "Contains cross-sectoral modules establishing harmonised requirements for all or multiple CBB licensee categories. " +
			"Ensures consistency in fundamental regulation across the sector. " +
			"Key topics include: " +
			"Fit and Proper Requirements (principles and criteria for board/senior management suitability: honesty, integrity, competency, financial soundness); " +
			"Environmental, Social, and Governance (ESG) (mandatory ESG framework, KPIs, reporting for licensees and listed companies).",
	},
}

func init() {
	for i := range registry {
		registry[i].Files = []string{sourceFile(registry[i])}
	}
}

func sourceFile(d Descriptor) string {
	if d.Number == "" {
		return CommonVolumeFile
	}
	return "rulebook_vol" + d.Number + ".pdf"
}

// Registry returns a copy of the 8 volume descriptors in registry order.
func Registry() []Descriptor {
	out := make([]Descriptor, len(registry))
	for i, d := range registry {
		d.Files = append([]string(nil), d.Files...)
		out[i] = d
	}
	return out
}

// Filters maps selected volumes to a filename allow-list.
// An empty selection yields nil, which disables filtering.
func Filters(selected []Scored) retrieval.Filters {
	if len(selected) == 0 {
		return nil
	}
	var files []string
	seen := make(map[string]struct{})
	for _, s := range selected {
		for _, f := range s.Descriptor.Files {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			files = append(files, f)
		}
	}
	return retrieval.Filters{"filename": files}
}
