package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// orderScanPrompt is the shared prompt used by all LLM providers for reading order receipts
const orderScanPrompt = `You are a meticulous data entry assistant. The image is a screenshot of an online order or payment slip (one or two screenshots placed side by side). Read every piece of text and extract the order.

Location rules. Find the house number of the delivery address and map it to a keyword:
- "115" together with "118" (115/118, 115-118) -> "บ้านฟ้า"
- "90" together with "95" (90/95, 90-95) -> "ฐานมั่นคง"
- "33" together with "158" (33/158, 33-158) -> "รุ่งเรืองเฮาส์"
- "4" together with "948" (4/948, 4-948) -> "ออฟฟิศ"
- none of the above: answer the short district or province name.

Formatting rules:
- platform: one of "Shopee", "Lazada", "TikTok", "Amaze", "LineMan", "Grab", capitalized.
- shop_name: the shop's own name only. Drop "Official Store", "Mall", "LazMall", "Flagship Store" and a trailing "Thailand".
- item_name: the main product name, at most 30 characters, without bracketed promotions. Append "xN" when the quantity N is more than 1.
- receiver_name: the first line under the delivery address, spelled exactly as printed. Remove any phone number.
- price: the net amount actually paid (grand total), usually the last amount on the slip. 0.00 when points or coins covered everything.
- coins: the discount paid with coins or points. 0.00 when none. Never use coupon or shop discount lines. Never use points that will be earned.
- date: "DD/MM" without the year.
- order_id: letters and digits only, without the "Order No." label. Copy every character exactly.
- tracking_number: Amaze parcel number only (usually 12 digits), never the AMZ-ORD reference. Empty string for other platforms.

Return ONLY valid JSON in this exact format:
{
  "platform": "String",
  "shop_name": "String",
  "item_name": "String",
  "price": 0.00,
  "coins": 0.00,
  "receiver_name": "String",
  "location": "String",
  "date": "DD/MM",
  "order_id": "String",
  "tracking_number": "String"
}

Important:
- price and coins must be numbers, not strings
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// renderPDF renders the first page of a PDF. Order slips are a single page.
func renderPDF(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// pdfToImage converts a PDF to a PNG image
func pdfToImage(pdfData []byte) ([]byte, error) {
	img, err := renderPDF(pdfData)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// decodeImage decodes JPEG, PNG, GIF and HEIC/HEIF data and the first page of a PDF
func decodeImage(imageData []byte) (image.Image, error) {
	if bytes.HasPrefix(imageData, []byte("%PDF-")) {
		return renderPDF(imageData)
	}
	if isHEICFormat(imageData) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// imageToPNG converts any supported image format to PNG
func imageToPNG(imageData []byte) ([]byte, error) {
	img, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIC-family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

// DetectMIMEType sniffs the content type, recognising HEIC which the
// standard sniffer does not know
func DetectMIMEType(data []byte) string {
	if isHEICFormat(data) {
		return "image/heic"
	}
	return http.DetectContentType(data)
}

// prepareImageData converts the image to PNG unless it already is one.
// Returns the final image data and the MIME type to send.
func prepareImageData(imageData []byte) ([]byte, string, error) {
	mimeType := DetectMIMEType(imageData)
	switch {
	case mimeType == "image/png":
		return imageData, mimeType, nil
	case mimeType == "application/pdf":
		pngData, err := pdfToImage(imageData)
		if err != nil {
			return nil, "", fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, "image/png", nil
	case mimeType == "image/jpeg":
		// Vision models take JPEG directly
		return imageData, mimeType, nil
	default:
		pngData, err := imageToPNG(imageData)
		if err != nil {
			return nil, "", fmt.Errorf("converting image to PNG: %w", err)
		}
		return pngData, "image/png", nil
	}
}
