// Package analysis 基于文件头魔数的类型核验
// 声明扩展名与真实类型不符且不在兼容别名表内时，判定为伪装文件
package analysis

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
)

// Risk 伪装文件的风险等级
type Risk string

const (
	RiskSafe   Risk = "SAFE"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH" // 可执行文件伪装成其他格式
)

// Finding 一次核验结果
type Finding struct {
	Masquerade  bool   // 声明类型与真实类型不符
	RealExt     string // 按文件头判定的真实类型
	DeclaredExt string // 文件名声明的类型
	Risk        Risk
	Detail      string
}

// TypeInspector 文件类型核验器
// 别名表当前只读，锁是为以后支持动态加载规则留的
type TypeInspector struct {
	mu      sync.RWMutex
	aliases map[string]map[string]bool // 真实类型 -> 允许声明的扩展名
}

func NewTypeInspector() *TypeInspector {
	t := &TypeInspector{aliases: make(map[string]map[string]bool)}

	allow := func(realType string, declared ...string) {
		set := t.aliases[realType]
		if set == nil {
			set = make(map[string]bool)
			t.aliases[realType] = set
		}
		set[realType] = true
		for _, ext := range declared {
			set[ext] = true
		}
	}

	// ZIP 容器家族：Office/Java/Android 等都是合法的 zip 伪装
	allow("zip",
		"docx", "docm", "dotx", "dotm",
		"xlsx", "xlsm", "xltx", "xltm",
		"pptx", "pptm", "potx", "potm",
		"jar", "war", "ear", "apk",
		"odt", "ods", "odp",
		"crx", "whl", "nupkg",
	)
	// XML 族
	allow("xml", "svg", "html", "htm", "kml", "dae", "plist", "config")
	// 媒体容器
	allow("mp4", "m4v", "mov", "qt")
	allow("mov", "qt", "mp4")
	allow("ogg", "ogv", "oga", "spx")
	// PE 一族在技术上同构
	allow("exe", "dll", "sys", "scr", "cpl", "ocx")
	// 压缩包
	allow("gz", "gzip", "tgz")
	allow("rar")
	allow("7z")

	return t
}

// Inspect 核验一个文件
// 无扩展名、空文件、未知魔数（多为纯文本）都视为安全
func (t *TypeInspector) Inspect(path string) (Finding, error) {
	rawExt := filepath.Ext(path)
	if rawExt == "" {
		return Finding{Risk: RiskSafe, Detail: "no extension"}, nil
	}
	declared := strings.ToLower(strings.TrimPrefix(rawExt, "."))

	f, err := os.Open(path)
	if err != nil {
		return Finding{}, err
	}
	defer f.Close()

	// 262 字节是 filetype 库建议的探测长度
	head := make([]byte, 262)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return Finding{DeclaredExt: declared, Risk: RiskSafe, Detail: "empty file"}, nil
	}

	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown {
		return Finding{RealExt: "unknown", DeclaredExt: declared, Risk: RiskSafe, Detail: "no binary signature"}, nil
	}
	real := kind.Extension

	if real == declared {
		return Finding{RealExt: real, DeclaredExt: declared, Risk: RiskSafe}, nil
	}

	t.mu.RLock()
	allowed := t.aliases[real][declared]
	t.mu.RUnlock()
	if allowed {
		return Finding{RealExt: real, DeclaredExt: declared, Risk: RiskSafe, Detail: "compatible alias"}, nil
	}

	risk := RiskMedium
	if real == "exe" || real == "elf" || real == "dll" {
		risk = RiskHigh
	}
	return Finding{
		Masquerade:  true,
		RealExt:     real,
		DeclaredExt: declared,
		Risk:        risk,
		Detail:      "header says '" + real + "' but name says '" + declared + "'",
	}, nil
}
