package labels

// FormFactor distinguishes fixed-length from continuous media.
type FormFactor string

const (
	Endless     FormFactor = "endless"
	DieCut      FormFactor = "die_cut"
	RoundDieCut FormFactor = "round_die_cut"
)

// Color is the ink capability of the media itself.
type Color int

const (
	BlackWhite Color = iota
	BlackRedWhite
)

// media is one entry of the static label table. Dimensions are in dots at 300dpi.
type media struct {
	id              string
	tapeWidthMM     int
	tapeLengthMM    int
	dotsTotal       [2]int
	dotsPrintable   [2]int
	rightMarginDots int
	feedMargin      int
	formFactor      FormFactor
	color           Color
	// restrictTo limits the entry to the listed models; empty means every model.
	restrictTo []string
}

var wideOnly = []string{"QL-1050", "QL-1060N", "QL-1100", "QL-1110NWB", "QL-1115NWB"}

var twoColorOnly = []string{"QL-800", "QL-810W", "QL-820NWB"}

var mediaTable = []media{
	{id: "12", tapeWidthMM: 12, dotsTotal: [2]int{142, 0}, dotsPrintable: [2]int{106, 0}, rightMarginDots: 29, feedMargin: 35, formFactor: Endless},
	{id: "29", tapeWidthMM: 29, dotsTotal: [2]int{342, 0}, dotsPrintable: [2]int{306, 0}, rightMarginDots: 6, feedMargin: 35, formFactor: Endless},
	{id: "38", tapeWidthMM: 38, dotsTotal: [2]int{449, 0}, dotsPrintable: [2]int{413, 0}, rightMarginDots: 12, feedMargin: 35, formFactor: Endless},
	{id: "50", tapeWidthMM: 50, dotsTotal: [2]int{590, 0}, dotsPrintable: [2]int{554, 0}, rightMarginDots: 12, feedMargin: 35, formFactor: Endless},
	{id: "54", tapeWidthMM: 54, dotsTotal: [2]int{636, 0}, dotsPrintable: [2]int{590, 0}, rightMarginDots: 0, feedMargin: 35, formFactor: Endless},
	{id: "62", tapeWidthMM: 62, dotsTotal: [2]int{732, 0}, dotsPrintable: [2]int{696, 0}, rightMarginDots: 12, feedMargin: 35, formFactor: Endless},
	{id: "62red", tapeWidthMM: 62, dotsTotal: [2]int{732, 0}, dotsPrintable: [2]int{696, 0}, rightMarginDots: 12, feedMargin: 35, formFactor: Endless, color: BlackRedWhite, restrictTo: twoColorOnly},
	{id: "102", tapeWidthMM: 102, dotsTotal: [2]int{1200, 0}, dotsPrintable: [2]int{1164, 0}, rightMarginDots: 12, feedMargin: 35, formFactor: Endless, restrictTo: wideOnly},
	{id: "103", tapeWidthMM: 104, dotsTotal: [2]int{1224, 0}, dotsPrintable: [2]int{1200, 0}, rightMarginDots: 12, feedMargin: 35, formFactor: Endless, restrictTo: wideOnly},
	{id: "17x54", tapeWidthMM: 17, tapeLengthMM: 54, dotsTotal: [2]int{201, 636}, dotsPrintable: [2]int{165, 566}, rightMarginDots: 0, formFactor: DieCut},
	{id: "17x87", tapeWidthMM: 17, tapeLengthMM: 87, dotsTotal: [2]int{201, 1026}, dotsPrintable: [2]int{165, 956}, rightMarginDots: 0, formFactor: DieCut},
	{id: "23x23", tapeWidthMM: 23, tapeLengthMM: 23, dotsTotal: [2]int{272, 272}, dotsPrintable: [2]int{202, 202}, rightMarginDots: 42, formFactor: DieCut},
	{id: "29x42", tapeWidthMM: 29, tapeLengthMM: 42, dotsTotal: [2]int{342, 495}, dotsPrintable: [2]int{306, 425}, rightMarginDots: 6, formFactor: DieCut},
	{id: "29x90", tapeWidthMM: 29, tapeLengthMM: 90, dotsTotal: [2]int{342, 1061}, dotsPrintable: [2]int{306, 991}, rightMarginDots: 6, formFactor: DieCut},
	{id: "39x90", tapeWidthMM: 38, tapeLengthMM: 90, dotsTotal: [2]int{449, 1061}, dotsPrintable: [2]int{413, 991}, rightMarginDots: 12, formFactor: DieCut},
	{id: "39x48", tapeWidthMM: 39, tapeLengthMM: 48, dotsTotal: [2]int{461, 565}, dotsPrintable: [2]int{425, 495}, rightMarginDots: 6, formFactor: DieCut},
	{id: "52x29", tapeWidthMM: 52, tapeLengthMM: 29, dotsTotal: [2]int{614, 341}, dotsPrintable: [2]int{578, 271}, rightMarginDots: 0, formFactor: DieCut},
	{id: "54x29", tapeWidthMM: 54, tapeLengthMM: 29, dotsTotal: [2]int{630, 341}, dotsPrintable: [2]int{598, 271}, rightMarginDots: 60, formFactor: DieCut},
	{id: "60x86", tapeWidthMM: 60, tapeLengthMM: 87, dotsTotal: [2]int{708, 1024}, dotsPrintable: [2]int{672, 954}, rightMarginDots: 18, formFactor: DieCut},
	{id: "62x29", tapeWidthMM: 62, tapeLengthMM: 29, dotsTotal: [2]int{732, 341}, dotsPrintable: [2]int{696, 271}, rightMarginDots: 12, formFactor: DieCut},
	{id: "62x100", tapeWidthMM: 62, tapeLengthMM: 100, dotsTotal: [2]int{732, 1179}, dotsPrintable: [2]int{696, 1109}, rightMarginDots: 12, formFactor: DieCut},
	{id: "102x51", tapeWidthMM: 102, tapeLengthMM: 51, dotsTotal: [2]int{1200, 596}, dotsPrintable: [2]int{1164, 526}, rightMarginDots: 12, formFactor: DieCut, restrictTo: wideOnly},
	{id: "102x152", tapeWidthMM: 102, tapeLengthMM: 153, dotsTotal: [2]int{1200, 1804}, dotsPrintable: [2]int{1164, 1660}, rightMarginDots: 12, formFactor: DieCut, restrictTo: wideOnly},
	{id: "d12", tapeWidthMM: 12, tapeLengthMM: 12, dotsTotal: [2]int{142, 142}, dotsPrintable: [2]int{94, 94}, rightMarginDots: 113, feedMargin: 35, formFactor: RoundDieCut},
	{id: "d24", tapeWidthMM: 24, tapeLengthMM: 24, dotsTotal: [2]int{284, 284}, dotsPrintable: [2]int{236, 236}, rightMarginDots: 42, formFactor: RoundDieCut},
	{id: "d58", tapeWidthMM: 58, tapeLengthMM: 58, dotsTotal: [2]int{688, 688}, dotsPrintable: [2]int{618, 618}, rightMarginDots: 51, formFactor: RoundDieCut},
}
