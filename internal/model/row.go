package model

// Row 一条归一化后的结果行：列名到值的有序映射。
// map 不保序，因此列顺序单独保存，首列提取依赖插入顺序
type Row struct {
	Columns []string               `json:"columns"`
	Values  map[string]interface{} `json:"values"`
}

func NewRow(columns []string, values []interface{}) Row {
	m := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		m[col] = values[i]
	}
	return Row{Columns: columns, Values: m}
}

func (r Row) Get(column string) (interface{}, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// First 按插入顺序返回首列的值
func (r Row) First() (interface{}, bool) {
	if len(r.Columns) == 0 {
		return nil, false
	}
	return r.Values[r.Columns[0]], true
}
