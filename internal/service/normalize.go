package service

import (
	"cypher_quest_backend/internal/model"
	"encoding/json"
)

// rowStrategy 尝试从一种响应形状中抽取行。匹配失败返回 false，
// 由调用方继续尝试下一个策略。新增后端形状时追加策略即可
type rowStrategy func(payload map[string]interface{}) ([]model.Row, bool)

// 固定优先级：records 类形状自带列名，最先尝试；
// 其次扁平 fields/values；再次事务型 columns/data；最后嵌套变体
var rowStrategies = []rowStrategy{
	fromRecordsFields,
	fromRecordsValues,
	fromNestedRecords,
	fromDataFieldsValues,
	fromFlatFieldsValues,
	fromTransactionalResults,
	fromNestedResults,
	fromDoubleNestedResults,
}

// NormalizeRows 将后端响应归一化为有序行序列。
// 无法识别的形状返回空序列和 false，不作为错误：
// 上游执行失败由响应的 error 字段单独表达
func NormalizeRows(payload map[string]interface{}) ([]model.Row, bool) {
	if payload == nil {
		return nil, false
	}
	for _, strategy := range rowStrategies {
		if rows, ok := strategy(payload); ok && len(rows) > 0 {
			return rows, true
		}
	}
	return nil, false
}

func NormalizeRowsJSON(data []byte) ([]model.Row, bool) {
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	return NormalizeRows(payload)
}

// {records: [{keys: [...], _fields: [...]}]}
func fromRecordsFields(payload map[string]interface{}) ([]model.Row, bool) {
	return recordsWith(payload, "records", "_fields")
}

// {records: [{keys: [...], values: [...]}]}
func fromRecordsValues(payload map[string]interface{}) ([]model.Row, bool) {
	return recordsWith(payload, "records", "values")
}

// {result: {records: [...]}}
func fromNestedRecords(payload map[string]interface{}) ([]model.Row, bool) {
	inner, ok := payload["result"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	if rows, ok := fromRecordsFields(inner); ok {
		return rows, true
	}
	return fromRecordsValues(inner)
}

// {data: {fields: [...], values: [[...], ...]}}
func fromDataFieldsValues(payload map[string]interface{}) ([]model.Row, bool) {
	inner, ok := payload["data"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return fromFlatFieldsValues(inner)
}

// {fields: [...], values: [[...], ...]}
func fromFlatFieldsValues(payload map[string]interface{}) ([]model.Row, bool) {
	fields, ok := stringSlice(payload["fields"])
	if !ok {
		return nil, false
	}
	valueRows, ok := payload["values"].([]interface{})
	if !ok {
		return nil, false
	}

	rows := make([]model.Row, 0, len(valueRows))
	for _, raw := range valueRows {
		values, ok := raw.([]interface{})
		if !ok || len(values) != len(fields) {
			return nil, false
		}
		rows = append(rows, zipRow(fields, values))
	}
	return rows, true
}

// {results: [{columns: [...], data: [{row: [...]}, ...]}]}
func fromTransactionalResults(payload map[string]interface{}) ([]model.Row, bool) {
	results, ok := payload["results"].([]interface{})
	if !ok || len(results) == 0 {
		return nil, false
	}
	first, ok := results[0].(map[string]interface{})
	if !ok {
		return nil, false
	}
	columns, ok := stringSlice(first["columns"])
	if !ok {
		return nil, false
	}
	data, ok := first["data"].([]interface{})
	if !ok {
		return nil, false
	}

	rows := make([]model.Row, 0, len(data))
	for _, raw := range data {
		var rowValues []interface{}
		switch entry := raw.(type) {
		case map[string]interface{}:
			rv, ok := entry["row"].([]interface{})
			if !ok {
				return nil, false
			}
			rowValues = rv
		case []interface{}:
			// 部分变体直接把值数组放在 data 里
			rowValues = entry
		default:
			return nil, false
		}
		if len(rowValues) != len(columns) {
			return nil, false
		}
		rows = append(rows, zipRow(columns, rowValues))
	}
	return rows, true
}

// {result: {results: [...]}}
func fromNestedResults(payload map[string]interface{}) ([]model.Row, bool) {
	inner, ok := payload["result"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return fromTransactionalResults(inner)
}

// {data: {result: {results: [...]}}}
func fromDoubleNestedResults(payload map[string]interface{}) ([]model.Row, bool) {
	data, ok := payload["data"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return fromNestedResults(data)
}

func recordsWith(payload map[string]interface{}, recordsKey, valuesKey string) ([]model.Row, bool) {
	records, ok := payload[recordsKey].([]interface{})
	if !ok {
		return nil, false
	}

	rows := make([]model.Row, 0, len(records))
	for _, raw := range records {
		record, ok := raw.(map[string]interface{})
		if !ok {
			return nil, false
		}
		keys, ok := stringSlice(record["keys"])
		if !ok {
			return nil, false
		}
		values, ok := record[valuesKey].([]interface{})
		if !ok || len(values) != len(keys) {
			return nil, false
		}
		rows = append(rows, zipRow(keys, values))
	}
	return rows, true
}

func zipRow(columns []string, values []interface{}) model.Row {
	normalized := make([]interface{}, len(values))
	for i, v := range values {
		normalized[i] = normalizeValue(v)
	}
	return model.NewRow(columns, normalized)
}

// normalizeValue 驱动整数对象 {low, high} 转为数值；
// 带 properties 的节点/关系对象原样保留，供判分做一层属性提取；
// 单键 {value: ...} 解包
func normalizeValue(v interface{}) interface{} {
	obj, ok := v.(map[string]interface{})
	if !ok {
		if arr, ok := v.([]interface{}); ok {
			out := make([]interface{}, len(arr))
			for i, item := range arr {
				out[i] = normalizeValue(item)
			}
			return out
		}
		return v
	}

	if low, hasLow := obj["low"]; hasLow {
		if _, hasHigh := obj["high"]; hasHigh {
			return low
		}
	}
	if _, hasProps := obj["properties"]; hasProps {
		return obj
	}
	if inner, hasValue := obj["value"]; hasValue && len(obj) == 1 {
		return normalizeValue(inner)
	}
	return obj
}

func stringSlice(v interface{}) ([]string, bool) {
	raw, ok := v.([]interface{})
	if !ok || len(raw) == 0 {
		return nil, false
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}
