package content

import "embed"

// 题库随二进制打包发布，运行期只读
//
//go:embed questions.json
var FS embed.FS

func Questions() ([]byte, error) {
	return FS.ReadFile("questions.json")
}
