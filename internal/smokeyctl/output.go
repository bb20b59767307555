// output.go holds CLI output helpers.
package smokeyctl

import (
	"encoding/json"
	"fmt"
)

// printOutput prints output in a human-friendly way.
func printOutput(output any) {
	switch v := output.(type) {
	case string:
		fmt.Println(v)
	case []byte:
		fmt.Println(string(v))
	default:
		b, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			fmt.Println(output)
			return
		}
		fmt.Println(string(b))
	}
}
