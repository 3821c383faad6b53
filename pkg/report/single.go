package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
)

type singleResult struct {
	A           int      `json:"a" yaml:"a"`
	B           int      `json:"b" yaml:"b"`
	C           int      `json:"c" yaml:"c"`
	D           int      `json:"d" yaml:"d"`
	Alternative string   `json:"alternative" yaml:"alternative"`
	OddsRatio   *float64 `json:"odds_ratio" yaml:"odds_ratio"`
	PValue      float64  `json:"p_value" yaml:"p_value"`
}

// WriteTest renders one test result. The table format prints a single
// "odds_ratio=<v> p_value=<v>" line.
func WriteTest(w io.Writer, tbl fisher.Table, alt fisher.Alternative, res fisher.Result, format Format) error {
	single := singleResult{
		A:           tbl.A,
		B:           tbl.B,
		C:           tbl.C,
		D:           tbl.D,
		Alternative: alt.String(),
		OddsRatio:   wireOddsRatio(res.OddsRatio),
		PValue:      res.PValue,
	}

	switch format {
	case FormatTable, "":
		_, err := fmt.Fprintf(w, "odds_ratio=%s p_value=%s\n", formatFloat(res.OddsRatio, -1), formatFloat(res.PValue, -1))

		return err
	case FormatJSON:
		return json.NewEncoder(w).Encode(single)
	case FormatYAML:
		return yaml.NewEncoder(w).Encode(single)
	case FormatTSV:
		_, err := fmt.Fprintf(w, "a\tb\tc\td\talternative\todds_ratio\tp_value\n%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			tbl.A, tbl.B, tbl.C, tbl.D, single.Alternative, formatFloat(res.OddsRatio, -1), formatFloat(res.PValue, -1))

		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
}
