package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previa/internal/domain"
	"previa/internal/ports"
)

const sampleCSV = "\ufeffRFC,Razon_Social,tipo_persona,relacion\n" +
	"cal080328s18,Comercializadora Alfa,MORAL,Proveedor\n" +
	",Sin RFC,moral,cliente\n" +
	"XAXX010101000,Publico General,fisica,cliente\n"

func TestParseCSV(t *testing.T) {
	got, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.EntityInput{RFC: "CAL080328S18", Name: "Comercializadora Alfa", PersonType: "moral", Relation: "proveedor"}, got[0])
	assert.Equal(t, "XAXX010101000", got[1].RFC)
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("rfc,nombre\nAAA,B\n"))
	assert.ErrorIs(t, err, ErrMissingColumns)

	_, err = ParseCSV(strings.NewReader("rfc,razon_social\n,\n"))
	assert.ErrorIs(t, err, ErrNoEntities)

	_, err = ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoEntities)
}

func TestParseUpload_Extensions(t *testing.T) {
	_, err := ParseUpload(ports.Upload{Filename: "list.pdf", Data: []byte(sampleCSV)})
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = ParseUpload(ports.Upload{Filename: "list.xlsx"})
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	got, err := ParseUpload(ports.Upload{Filename: "LIST.CSV", Data: []byte(sampleCSV)})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
