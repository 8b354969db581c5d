package mapper

import (
	"errors"
	"reflect"
	"testing"
)

func feeBasedMap() *ColumnMap {
	return New([]Pair{
		{Header: "Código Cliente", Column: "codigo_cliente"},
		{Header: "Nome Cliente", Column: "nome_cliente"},
		{Header: "Taxa Contratação", Column: "taxa_contratacao"},
		{Header: "Status", Column: "status"},
	})
}

func TestPlanDropsUnmappedHeaders(t *testing.T) {
	plan, err := feeBasedMap().Plan([]string{"Código Cliente", "Observação", "Nome Cliente"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	want := []string{"codigo_cliente", "nome_cliente"}
	if got := plan.Columns(); !reflect.DeepEqual(got, want) {
		t.Errorf("Columns = %v, want %v", got, want)
	}

	row := plan.Apply([]string{"1", "ignored", "Ana"})
	if !reflect.DeepEqual(row, []string{"1", "Ana"}) {
		t.Errorf("Apply = %v", row)
	}

	missing := plan.Missing()
	if !reflect.DeepEqual(missing, []string{"Taxa Contratação", "Status"}) {
		t.Errorf("Missing = %v", missing)
	}
}

func TestPlanIsOrderIndependent(t *testing.T) {
	m := feeBasedMap()
	headers := [][]string{
		{"Código Cliente", "Nome Cliente", "Taxa Contratação", "Status"},
		{"Status", "Taxa Contratação", "Nome Cliente", "Código Cliente"},
		{"Nome Cliente", "Status", "Código Cliente", "Taxa Contratação"},
	}
	values := map[string]string{
		"Código Cliente":   "7",
		"Nome Cliente":     "Bruno",
		"Taxa Contratação": "2,00%",
		"Status":           "Ativo",
	}

	var first []string
	var firstRow []string
	for i, h := range headers {
		plan, err := m.Plan(h)
		if err != nil {
			t.Fatalf("Plan(%v) failed: %v", h, err)
		}
		raw := make([]string, len(h))
		for j, name := range h {
			raw[j] = values[name]
		}
		row := plan.Apply(raw)
		if i == 0 {
			first, firstRow = plan.Columns(), row
			continue
		}
		if !reflect.DeepEqual(plan.Columns(), first) {
			t.Errorf("permutation %d columns = %v, want %v", i, plan.Columns(), first)
		}
		if !reflect.DeepEqual(row, firstRow) {
			t.Errorf("permutation %d row = %v, want %v", i, row, firstRow)
		}
	}
}

func TestPlanNoMatches(t *testing.T) {
	_, err := feeBasedMap().Plan([]string{"Código Cliente;Nome Cliente;Status"})
	if !errors.Is(err, ErrNoMappedColumns) {
		t.Fatalf("expected ErrNoMappedColumns, got %v", err)
	}
}

func TestPlanCanonicalizesHeaders(t *testing.T) {
	// decomposed "ó" (o + combining acute) and irregular spacing
	plan, err := feeBasedMap().Plan([]string{"  Co\u0301digo   Cliente ", "Status\t"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if got := plan.Columns(); !reflect.DeepEqual(got, []string{"codigo_cliente", "status"}) {
		t.Errorf("Columns = %v", got)
	}
}

func TestPlanFirstDuplicateWins(t *testing.T) {
	plan, err := feeBasedMap().Plan([]string{"Status", "Status"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if row := plan.Apply([]string{"first", "second"}); row[0] != "first" {
		t.Errorf("Apply = %v, want first occurrence", row)
	}
}

func TestAliasesFeedOneColumn(t *testing.T) {
	m := New([]Pair{
		{Header: "Profissão", Column: "Profissao"},
		{Header: "Profissǜo", Column: "Profissao"},
		{Header: "Sexo", Column: "Sexo"},
	})
	if got := m.Columns(); !reflect.DeepEqual(got, []string{"Profissao", "Sexo"}) {
		t.Fatalf("Columns = %v", got)
	}

	plan, err := m.Plan([]string{"Sexo", "Profissǜo"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if row := plan.Apply([]string{"F", "Médica"}); !reflect.DeepEqual(row, []string{"Médica", "F"}) {
		t.Errorf("Apply = %v", row)
	}
}

func TestApplyShortRow(t *testing.T) {
	plan, err := feeBasedMap().Plan([]string{"Código Cliente", "Nome Cliente", "Status"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if row := plan.Apply([]string{"9"}); !reflect.DeepEqual(row, []string{"9", "", ""}) {
		t.Errorf("Apply = %v", row)
	}
}
