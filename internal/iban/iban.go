/**
 * @description
 * IBAN and French RIB calculations. Account numbers issued by the ledger are
 * the bank currency followed by an 8-digit sequence (e.g. "EUR00000001");
 * banks expose them as French IBANs built from the bank's code and branch
 * code.
 *
 * Two distinct character encodings are in play and must not be confused:
 * - the French RIB "lettres" table folds A-I/J-R onto 1..9 and S-Z onto 2..9,
 *   used for the RIB key;
 * - the ISO 13616 substitution maps A..Z onto 10..35, used for the IBAN check
 *   digits.
 */

package iban

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openclearing/settlement-service/internal/domain"
)

// frenchCharDigit returns the RIB digit for a single character, or -1 when
// the character does not contribute to the numeric value.
func frenchCharDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		c -= 'a' - 'A'
	}
	v := int(c) - 48
	switch {
	case v >= 17 && v <= 34: // A-R
		return (v-17)%9 + 1
	case v >= 35 && v <= 42: // S-Z
		return (v-16)%9 + 1
	default:
		return -1
	}
}

// StringToNumber folds a RIB component (bank code, branch code or account
// number) onto its numeric value using the French lettres table. Characters
// outside [0-9A-Za-z] are skipped. The result is returned as a decimal string
// without leading zeros since account components may exceed 64 bits.
func StringToNumber(s string) string {
	var b strings.Builder
	leading := true
	for i := 0; i < len(s); i++ {
		d := frenchCharDigit(s[i])
		if d < 0 {
			continue
		}
		if d == 0 && leading {
			continue
		}
		leading = false
		b.WriteByte(byte('0' + d))
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String()
}

// stringMod97 is StringToNumber reduced modulo 97, computed incrementally so
// arbitrarily long components never overflow.
func stringMod97(s string) uint64 {
	var r uint64
	for i := 0; i < len(s); i++ {
		d := frenchCharDigit(s[i])
		if d < 0 {
			continue
		}
		r = (r*10 + uint64(d)) % 97
	}
	return r
}

// FrenchRIBKey computes the RIB key from the numeric values of the bank code,
// branch code and account number: 97 - (89b + 15s + 3a) mod 97.
func FrenchRIBKey(bank, branch, account uint64) uint64 {
	return 97 - (89*(bank%97)+15*(branch%97)+3*(account%97))%97
}

// FrenchRIBKeyFromStrings computes the RIB key directly from the textual RIB
// components, letters folded per the French table.
func FrenchRIBKeyFromStrings(bankCode, branchCode, accountNumber string) uint64 {
	return FrenchRIBKey(stringMod97(bankCode), stringMod97(branchCode), stringMod97(accountNumber))
}

func padLeft(s string, length int) string {
	for len(s) < length {
		s = "0" + s
	}
	return s
}

// FrenchBBAN assembles the 23-character French BBAN: bank code on 5, branch
// code on 5, account number on 11, RIB key on 2.
func FrenchBBAN(bankCode, branchCode, accountNumber string) string {
	key := FrenchRIBKeyFromStrings(bankCode, branchCode, accountNumber)
	return padLeft(bankCode, 5) +
		padLeft(branchCode, 5) +
		padLeft(accountNumber, 11) +
		padLeft(strconv.FormatUint(key, 10), 2)
}

// isoSubstitute rewrites an IBAN fragment with the ISO 13616 substitution,
// A..Z becoming 10..35. Characters outside [0-9A-Z] are dropped.
func isoSubstitute(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b.WriteString(strconv.Itoa(int(c) - 55))
		case c >= '0' && c <= '9':
			b.WriteByte(c)
		}
	}
	return b.String()
}

// checkDigits computes the two IBAN check digits for a BBAN and country code,
// folding the substituted number modulo 97 in 9-character windows.
func checkDigits(country, bban string) string {
	numero := isoSubstitute(bban+country) + "00"
	var calc uint64
	for i := 0; i < len(numero); i++ {
		calc = (calc*10 + uint64(numero[i]-'0')) % 97
	}
	calc = 98 - calc%97
	return padLeft(strconv.FormatUint(calc, 10), 2)
}

// CalculateIBAN produces the IBAN for a country code and BBAN.
func CalculateIBAN(country, bban string) string {
	return strings.ToUpper(country) + checkDigits(country, bban) + strings.ToUpper(bban)
}

// CalculateFrenchIBAN produces the full French IBAN from the raw RIB
// components.
func CalculateFrenchIBAN(bankCode, branchCode, accountNumber string) string {
	return CalculateIBAN("FR", FrenchBBAN(bankCode, branchCode, accountNumber))
}

// FrenchIBANDetails is the decomposition of a French IBAN back into its RIB
// components. The RIB key is rendered without a leading zero.
type FrenchIBANDetails struct {
	BankCode      string `json:"bankCode"`
	BranchCode    string `json:"branchCode"`
	AccountNumber string `json:"accountNumber"`
	RIBKey        string `json:"ribKey"`
}

// ExtractFrenchIBAN splits a 27-character French IBAN into its components.
func ExtractFrenchIBAN(iban string) (FrenchIBANDetails, error) {
	iban = strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if len(iban) != 27 || !strings.HasPrefix(iban, "FR") {
		return FrenchIBANDetails{}, fmt.Errorf("%w: %q is not a french IBAN", domain.ErrRecipientUnresolved, iban)
	}
	key, err := strconv.ParseUint(iban[25:27], 10, 8)
	if err != nil {
		return FrenchIBANDetails{}, fmt.Errorf("%w: bad RIB key in %q", domain.ErrRecipientUnresolved, iban)
	}
	return FrenchIBANDetails{
		BankCode:      iban[4:9],
		BranchCode:    iban[9:14],
		AccountNumber: iban[14:25],
		RIBKey:        strconv.FormatUint(key, 10),
	}, nil
}
